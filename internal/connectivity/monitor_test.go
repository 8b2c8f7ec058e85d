package connectivity

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_initialState(t *testing.T) {
	assert.True(t, NewMonitor(true).IsOnline())
	assert.False(t, NewMonitor(false).IsOnline())
}

func TestMonitor_firesOnlyOnEdge(t *testing.T) {
	m := NewMonitor(false)
	var calls atomic.Int32
	m.OnReconnect(func() { calls.Add(1) })

	m.SetOnline(true)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, m.IsOnline())

	// Repeated online reports are not reconnects.
	m.SetOnline(true)
	assert.Equal(t, int32(1), calls.Load())

	m.SetOnline(false)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, m.IsOnline())

	m.SetOnline(true)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMonitor_unsubscribe(t *testing.T) {
	m := NewMonitor(false)
	var a, b atomic.Int32
	unsubA := m.OnReconnect(func() { a.Add(1) })
	m.OnReconnect(func() { b.Add(1) })

	unsubA()
	unsubA()

	m.SetOnline(true)
	assert.Zero(t, a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestMonitor_subscriberMayUseMonitor(t *testing.T) {
	m := NewMonitor(false)
	var sawOnline atomic.Bool
	var unsub func()
	unsub = m.OnReconnect(func() {
		sawOnline.Store(m.IsOnline())
		unsub()
	})

	m.SetOnline(true)
	assert.True(t, sawOnline.Load())
}
