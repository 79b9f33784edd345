// Package storage 提供资产文本的对象存储。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// Store 是资产文本的存取接口。
type Store interface {
	Put(ctx context.Context, object string, data []byte) error
	Get(ctx context.Context, object string) ([]byte, error)
	// Remove 删除单个对象，对象不存在不视为错误。
	Remove(ctx context.Context, object string) error
	// RemovePrefix 删除以 prefix 开头的全部对象。
	RemovePrefix(ctx context.Context, prefix string) error
}

// ObjectName 返回资产在存储中的对象名。
func ObjectName(projectID, assetName string) string {
	return ProjectPrefix(projectID) + assetName
}

// ProjectPrefix 返回项目全部资产共用的对象名前缀。
func ProjectPrefix(projectID string) string {
	return "projects/" + projectID + "/"
}

// MinIO 是基于 minio-go 的 Store。
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &MinIO{client: client, bucket: cfg.BucketName}, nil
}

func (m *MinIO) Put(ctx context.Context, object string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	return err
}

func (m *MinIO) Get(ctx context.Context, object string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, object)
		}
		return nil, err
	}
	return data, nil
}

func (m *MinIO) Remove(ctx context.Context, object string) error {
	return m.client.RemoveObject(ctx, m.bucket, object, minio.RemoveObjectOptions{})
}

func (m *MinIO) RemovePrefix(ctx context.Context, prefix string) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("删除对象 %s 失败: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return nil
}

// Memory 是进程内的 Store，未配置 MinIO 时以及测试中使用。
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory 创建一个空的内存存储。
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, object string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[object] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Get(_ context.Context, object string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[object]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, object)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Remove(_ context.Context, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, object)
	return nil
}

func (m *Memory) RemovePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			delete(m.objects, name)
		}
	}
	return nil
}

// Objects 返回当前全部对象名，按字典序。
func (m *Memory) Objects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
