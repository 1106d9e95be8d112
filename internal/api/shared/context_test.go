package shared

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	traced := SetTraceID(ctx)
	id := GetTraceID(traced)
	assert.Len(t, id, 32)
	_, err := hex.DecodeString(id)
	assert.NoError(t, err)

	assert.Empty(t, GetTraceID(ctx), "original context must be unchanged")
}

func TestGetTraceIDWithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestGenerateTraceIDUnique(t *testing.T) {
	seen := make(map[string]bool, 500)
	for i := 0; i < 500; i++ {
		id := generateTraceID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSessionFromMissing(t *testing.T) {
	s, ok := SessionFrom(context.Background())
	assert.False(t, ok)
	assert.Nil(t, s)

	ctx := WithSession(context.Background(), nil)
	_, ok = SessionFrom(ctx)
	assert.False(t, ok)
}
