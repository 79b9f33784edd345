package vectordb

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const collectionPrefix = "rag_"

// recordNamespace 是生成记录 ID 的 UUIDv5 命名空间。
var recordNamespace = uuid.MustParse("6f1c8f3e-2b1a-5d7e-9c4b-0a6e5f3d2c1b")

// CollectionName 把项目 ID 编码为集合名。[a-z0-9] 原样保留，其余每个字节编码为 "_" 加两位十六进制，
// 因此映射是单射的，且结果只含小写字母、数字和下划线，各后端都能接受。
func CollectionName(projectID string) string {
	var sb strings.Builder
	sb.Grow(len(collectionPrefix) + len(projectID))
	sb.WriteString(collectionPrefix)
	for i := 0; i < len(projectID); i++ {
		c := projectID[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('_')
		sb.WriteString(strconv.FormatUint(uint64(c)|0x100, 16)[1:])
	}
	return sb.String()
}

// RecordID 由 (projectID, fileID, order) 确定性地生成记录 ID，重复索引同一块会覆盖而不是新增。
func RecordID(projectID, fileID string, order int) string {
	key := strconv.Itoa(len(projectID)) + ":" + projectID + "|" +
		strconv.Itoa(len(fileID)) + ":" + fileID + "|" + strconv.Itoa(order)
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}
