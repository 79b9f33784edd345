package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(KindIndexNotFound, "vectordb.Query", "collection %q missing", "rag_p1")
	wrapped := fmt.Errorf("retrieve: %w", err)

	assert.True(t, errors.Is(wrapped, ErrIndexNotFound))
	assert.False(t, errors.Is(wrapped, ErrIndexEmpty))
	assert.Equal(t, KindIndexNotFound, KindOf(wrapped))
}

func TestWrapKeepsUpstreamMessage(t *testing.T) {
	upstream := errors.New("401 unauthorized")
	err := Wrap(KindGenerationFailed, "llm.Generate", upstream)

	assert.True(t, errors.Is(err, upstream))
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Equal(t, "401 unauthorized", Message(err))
	assert.Contains(t, err.Error(), "llm.Generate")
	assert.Nil(t, Wrap(KindProviderError, "noop", nil))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}
