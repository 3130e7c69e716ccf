package pacer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSucceedsFirstTry(t *testing.T) {
	p := New(MinSleep(time.Microsecond), MaxSleep(time.Millisecond))
	calls := 0
	err := p.Call(context.Background(), func() (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesAtLeastThreeTimes(t *testing.T) {
	p := New(MinSleep(time.Microsecond), MaxSleep(time.Millisecond), RetriesOption(3))
	calls := 0
	boom := errors.New("boom")
	err := p.Call(context.Background(), func() (bool, error) {
		calls++
		return true, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestCallStopsOnNoRetry(t *testing.T) {
	p := New(MinSleep(time.Microsecond), MaxSleep(time.Millisecond), RetriesOption(5))
	calls := 0
	err := p.Call(context.Background(), func() (bool, error) {
		calls++
		return false, errors.New("fatal enough")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTokenDispenserBoundsConcurrency(t *testing.T) {
	td := NewTokenDispenser(2)
	td.Get()
	td.Get()
	done := make(chan struct{})
	go func() {
		td.Get()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Get should have blocked with no tokens available")
	case <-time.After(10 * time.Millisecond):
	}
	td.Put()
	<-done
}
