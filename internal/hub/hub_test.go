package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-service/internal/logging"
)

// fakeConn records frames and can be switched to fail writes.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed int
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write: broken pipe")
	}
	f.frames = append(f.frames, v.(Frame))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		out = append(out, fr.Event)
	}
	return out
}

func (f *fakeConn) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func newTestHub() *Hub {
	return New(logging.NewNop(), 0, 10)
}

func TestRegister(t *testing.T) {
	t.Run("sends connect ack immediately", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Register(7, c))
		require.Equal(t, []string{"connect"}, c.events())
		assert.True(t, h.IsConnected(7))
	})

	t.Run("multiple connections per user allowed", func(t *testing.T) {
		h := newTestHub()
		require.NoError(t, h.Register(7, &fakeConn{}))
		require.NoError(t, h.Register(7, &fakeConn{}))
		assert.Equal(t, 2, h.ActiveConnections())
		assert.Equal(t, 1, h.ActiveUsers())
	})

	t.Run("connection limit enforced", func(t *testing.T) {
		h := New(logging.NewNop(), 0, 2)
		require.NoError(t, h.Register(7, &fakeConn{}))
		require.NoError(t, h.Register(7, &fakeConn{}))
		assert.Error(t, h.Register(7, &fakeConn{}))
	})

	t.Run("failed ack removes the connection", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{fail: true}
		assert.Error(t, h.Register(7, c))
		assert.False(t, h.IsConnected(7))
	})
}

func TestSendToUser(t *testing.T) {
	t.Run("true when at least one connection accepts", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Register(3, c))

		ok := h.SendToUser(3, "proctoring.violation", map[string]any{"sessionId": "s1"})
		assert.True(t, ok)
		assert.Equal(t, []string{"connect", "proctoring.violation"}, c.events())
	})

	t.Run("false when user has no connections", func(t *testing.T) {
		h := newTestHub()
		assert.False(t, h.SendToUser(99, "test", nil))
	})

	t.Run("dead connection removed, healthy one still delivers", func(t *testing.T) {
		h := newTestHub()
		dead := &fakeConn{}
		live := &fakeConn{}
		require.NoError(t, h.Register(3, dead))
		require.NoError(t, h.Register(3, live))
		dead.setFail(true)

		ok := h.SendToUser(3, "test", "payload")
		assert.True(t, ok)
		assert.Equal(t, 1, h.ActiveConnections())
	})

	t.Run("false after disconnectUser", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Register(3, c))
		require.True(t, h.SendToUser(3, "test", nil))

		h.DisconnectUser(3)
		assert.False(t, h.SendToUser(3, "test", nil))
		assert.False(t, h.IsConnected(3))
	})
}

func TestBroadcastToTopic(t *testing.T) {
	t.Run("delivers to every subscriber", func(t *testing.T) {
		h := newTestHub()
		a := &fakeConn{}
		b := &fakeConn{}
		other := &fakeConn{}
		require.NoError(t, h.Subscribe("exam-updates", 1, a))
		require.NoError(t, h.Subscribe("exam-updates", 2, b))
		require.NoError(t, h.Subscribe("something-else", 3, other))

		h.BroadcastToTopic("exam-updates", "broadcast", "hello")

		assert.Contains(t, a.events(), "broadcast")
		assert.Contains(t, b.events(), "broadcast")
		assert.NotContains(t, other.events(), "broadcast")
	})

	t.Run("topic subscriber also receives unicast", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Subscribe("exam-updates", 5, c))
		assert.True(t, h.SendToUser(5, "direct", nil))
	})

	t.Run("failed subscriber removed from topic", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Subscribe("exam-updates", 1, c))
		c.setFail(true)

		h.BroadcastToTopic("exam-updates", "broadcast", nil)
		assert.False(t, h.IsConnected(1))
	})
}

func TestHeartbeat(t *testing.T) {
	t.Run("heartbeat frame reaches open connections", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Register(1, c))

		h.heartbeat()
		assert.Equal(t, []string{"connect", "heartbeat"}, c.events())
	})

	t.Run("failing heartbeat evicts the connection", func(t *testing.T) {
		h := newTestHub()
		c := &fakeConn{}
		require.NoError(t, h.Register(1, c))
		c.setFail(true)

		h.heartbeat()
		assert.False(t, h.IsConnected(1))
	})

	t.Run("heartbeat loop runs on interval", func(t *testing.T) {
		h := New(logging.NewNop(), 10*time.Millisecond, 10)
		c := &fakeConn{}
		require.NoError(t, h.Register(1, c))

		h.Start()
		time.Sleep(35 * time.Millisecond)
		h.Stop()

		events := c.events()
		beats := 0
		for _, e := range events {
			if e == "heartbeat" {
				beats++
			}
		}
		assert.GreaterOrEqual(t, beats, 2)
	})
}

func TestStop(t *testing.T) {
	t.Run("closes every connection exactly once", func(t *testing.T) {
		h := newTestHub()
		a := &fakeConn{}
		b := &fakeConn{}
		require.NoError(t, h.Register(1, a))
		require.NoError(t, h.Register(2, b))

		h.Stop()
		assert.Equal(t, 1, a.closed)
		assert.Equal(t, 1, b.closed)
		assert.Equal(t, 0, h.ActiveConnections())
	})
}

func TestConcurrentRemovalAndDelivery(t *testing.T) {
	h := newTestHub()
	for i := 0; i < 20; i++ {
		require.NoError(t, h.Register(1, &fakeConn{}))
		if i%2 == 0 {
			require.NoError(t, h.Subscribe("load", 2, &fakeConn{}))
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.SendToUser(1, "tick", j)
				h.BroadcastToTopic("load", "tick", j)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.DisconnectUser(1)
		h.DisconnectUser(2)
	}()
	wg.Wait()

	assert.False(t, h.IsConnected(1))
	assert.False(t, h.IsConnected(2))
}
