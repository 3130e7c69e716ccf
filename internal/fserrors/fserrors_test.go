package fserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndClassify(t *testing.T) {
	base := errors.New("connection reset")

	r := Retriable(base)
	assert.True(t, IsRetriable(r))
	assert.False(t, IsNoRetry(r))
	assert.False(t, IsFatal(r))
	assert.ErrorIs(t, r, base)

	nr := NoRetry(ErrArchiveCorrupt)
	assert.True(t, IsNoRetry(nr))
	assert.ErrorIs(t, nr, ErrArchiveCorrupt)

	f := Fatal(base)
	assert.True(t, IsFatal(f))
	assert.ErrorIs(t, f, base)
}

func TestNilWrapIsNil(t *testing.T) {
	assert.NoError(t, Retriable(nil))
	assert.NoError(t, NoRetry(nil))
	assert.NoError(t, Fatal(nil))
}
