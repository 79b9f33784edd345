package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"lite-rag-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	err   error
	calls int
}

func (p *fakeProcessor) Process(context.Context, tasks.DocumentProcessingTask) error {
	p.calls++
	return p.err
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (c *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

func message(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(tasks.DocumentProcessingTask{ProjectID: "p1", FileID: "a.txt", ChunkSize: 100})
	require.NoError(t, err)
	return b
}

func TestHandleCommitsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	proc := &fakeProcessor{err: errors.New("boom")}
	counter := &fakeCounter{counts: map[string]int64{}}
	msg := message(t)

	assert.False(t, handle(ctx, proc, counter, 3, msg))
	assert.False(t, handle(ctx, proc, counter, 3, msg))
	assert.True(t, handle(ctx, proc, counter, 3, msg))
	assert.Equal(t, 3, proc.calls)
}

func TestHandleSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	proc := &fakeProcessor{err: errors.New("boom")}
	counter := &fakeCounter{counts: map[string]int64{}}
	msg := message(t)

	assert.False(t, handle(ctx, proc, counter, 3, msg))
	proc.err = nil
	assert.True(t, handle(ctx, proc, counter, 3, msg))
	assert.NotContains(t, counter.counts, "p1/a.txt")
}

func TestHandleMalformedAndCounterFailure(t *testing.T) {
	ctx := context.Background()
	proc := &fakeProcessor{err: errors.New("boom")}

	assert.True(t, handle(ctx, proc, nil, 3, []byte("{not json")))
	assert.Equal(t, 0, proc.calls)

	// 计数器不可用时不提交，交给 Kafka 重投
	assert.False(t, handle(ctx, proc, &fakeCounter{err: errors.New("redis down")}, 3, message(t)))
	// 没有计数器时失败任务直接提交
	assert.True(t, handle(ctx, proc, nil, 3, message(t)))
}
