package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGuard_AcquireRelease(t *testing.T) {
	g := NewSessionGuard()

	release, err := g.Acquire("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Active())

	_, err = g.Acquire("s1")
	require.Error(t, err)
	var busy *BusyError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, "s1", busy.SessionID)
	assert.Contains(t, err.Error(), "busy")

	release()
	release()
	assert.Zero(t, g.Active())

	release, err = g.Acquire("s1")
	require.NoError(t, err)
	release()
}

func TestSessionGuard_Concurrent(t *testing.T) {
	g := NewSessionGuard()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		releases []func()
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire("shared")
			if err != nil {
				return
			}
			mu.Lock()
			admitted++
			releases = append(releases, release)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	for _, r := range releases {
		r()
	}
	assert.Zero(t, g.Active())
}
