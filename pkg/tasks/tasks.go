// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask 描述一次文档处理：读取资产文本、切块、替换块记录，可选地写入向量库。
type DocumentProcessingTask struct {
	ProjectID       string `json:"project_id"`
	FileID          string `json:"file_id"`
	ChunkSize       int    `json:"chunk_size"`
	ChunkOverlap    int    `json:"chunk_overlap"`
	ReplaceExisting bool   `json:"replace_existing"`
	// Index 为 true 时处理完成后把该资产的块追加写入项目集合。
	Index bool `json:"index"`
}

// Key 返回任务的去重键，用于失败计数。
func (t DocumentProcessingTask) Key() string {
	return t.ProjectID + "/" + t.FileID
}
