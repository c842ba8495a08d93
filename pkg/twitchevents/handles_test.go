package twitchevents

import (
	"sync"
	"testing"

	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandles(t *testing.T, d *fakeDialer) *Handles {
	t.Helper()
	h := NewHandles(testOptions(d, &fakeSubscriber{}))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandle_Encoding(t *testing.T) {
	h := newHandle(7, 3)
	assert.Equal(t, uint32(7), h.slot())
	assert.Equal(t, uint32(3), h.generation())
	assert.Equal(t, Handle(3<<32|7), h)
}

func TestHandles_ConstructPollDispose(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn
	h := newTestHandles(t, d)

	handle, err := h.Construct(`{"follow": true}`)
	require.NoError(t, err)
	assert.NotZero(t, handle)
	assert.Equal(t, 1, h.Len())

	kind, body, err := h.Poll(handle)
	require.NoError(t, err)
	assert.Empty(t, kind)
	assert.Empty(t, body)

	conn.send(welcomeFrame("s1"))
	require.Eventually(t, func() bool {
		state, err := h.State(handle)
		return err == nil && state == domain.StateLive.String()
	}, waitFor, tick)

	conn.send(notificationFrame("n1", domain.TopicFollow, followEvent))
	require.Eventually(t, func() bool {
		kind, body, err = h.Poll(handle)
		return err == nil && kind != ""
	}, waitFor, tick)
	assert.Equal(t, string(domain.KindFollow), kind)
	assert.JSONEq(t, followEvent, body)

	require.NoError(t, h.Dispose(handle))
	assert.Equal(t, 0, h.Len())

	_, _, err = h.Poll(handle)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = h.State(handle)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.NoError(t, h.Dispose(handle), "disposing a stale handle is a no-op")
}

func TestHandles_ConstructConfigError(t *testing.T) {
	h := newTestHandles(t, newFakeDialer())

	handle, err := h.Construct(`{"nope": true}`)
	assert.Zero(t, handle)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, h.Len())
}

func TestHandles_SlotReuseBumpsGeneration(t *testing.T) {
	h := newTestHandles(t, newFakeDialer())

	first, err := h.Construct(`{"follow": true}`)
	require.NoError(t, err)
	require.NoError(t, h.Dispose(first))

	second, err := h.Construct(`{"follow": true}`)
	require.NoError(t, err)

	assert.Equal(t, first.slot(), second.slot())
	assert.NotEqual(t, first, second)

	_, _, err = h.Poll(first)
	assert.ErrorIs(t, err, ErrInvalidHandle, "old handle must not reach the new client")
	_, _, err = h.Poll(second)
	assert.NoError(t, err)
}

func TestHandles_UnknownHandles(t *testing.T) {
	h := newTestHandles(t, newFakeDialer())

	for _, handle := range []Handle{0, newHandle(0, 1), newHandle(99, 1)} {
		_, _, err := h.Poll(handle)
		assert.ErrorIs(t, err, ErrInvalidHandle)
		assert.NoError(t, h.Dispose(handle))
	}
}

func TestHandles_ConcurrentDispose(t *testing.T) {
	h := newTestHandles(t, newFakeDialer())
	handle, err := h.Construct(`{"follow": true}`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Dispose(handle)
			_, _, _ = h.Poll(handle)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.Len())
}

func TestHandles_CloseDisposesAll(t *testing.T) {
	h := newTestHandles(t, newFakeDialer())
	a, err := h.Construct(`{"follow": true}`)
	require.NoError(t, err)
	b, err := h.Construct(`{"raid": true}`)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	require.NoError(t, h.Close())
	assert.Equal(t, 0, h.Len())
	for _, handle := range []Handle{a, b} {
		_, _, err := h.Poll(handle)
		assert.ErrorIs(t, err, ErrInvalidHandle)
	}
}
