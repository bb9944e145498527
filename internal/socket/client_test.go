package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(buffer int) *Client {
	return newClient(nil, 7, Options{SendBuffer: buffer, RateLimit: 1, RateBurst: 1}, logging.Discard())
}

func TestEmitNeverBlocks(t *testing.T) {
	c := newTestClient(1)
	require.NoError(t, c.Emit(hub.Message{Event: "a"}))
	assert.ErrorIs(t, c.Emit(hub.Message{Event: "b"}), ErrSendBufferFull)

	c.close()
	c.close()
	assert.ErrorIs(t, c.Emit(hub.Message{Event: "c"}), ErrClosed)
}

func TestAwaitAckResolved(t *testing.T) {
	c := newTestClient(4)

	go func() {
		var f Frame
		assert.NoError(t, json.Unmarshal(<-c.send, &f))
		c.resolve(f.AckID, json.RawMessage(`{"seenUpTo":3}`))
	}()

	data, err := c.AwaitAck(context.Background(), hub.Message{Event: EventUnseenEvents}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seenUpTo":3}`, string(data))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.pending)
}

func TestAwaitAckTimeoutAndClose(t *testing.T) {
	c := newTestClient(4)
	_, err := c.AwaitAck(context.Background(), hub.Message{Event: EventUnseenEvents}, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.False(t, c.resolve("unknown", nil))

	go c.close()
	_, err = c.AwaitAck(context.Background(), hub.Message{Event: EventUnseenEvents}, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReplyWithoutAckIDIsDropped(t *testing.T) {
	c := newTestClient(4)
	c.reply("", map[string]bool{"ok": true})
	assert.Empty(t, c.send)

	c.reply("x1", map[string]bool{"ok": true})
	var f Frame
	require.NoError(t, json.Unmarshal(<-c.send, &f))
	assert.Equal(t, EventAck, f.Event)
	assert.Equal(t, "x1", f.AckID)
}

func TestReplyWaitsForBufferSpace(t *testing.T) {
	c := newTestClient(1)
	require.NoError(t, c.Emit(hub.Message{Event: "filler"}))

	go func() {
		time.Sleep(50 * time.Millisecond)
		<-c.send
	}()
	c.reply("r1", map[string]bool{"ok": true})

	var f Frame
	require.NoError(t, json.Unmarshal(<-c.send, &f))
	assert.Equal(t, "r1", f.AckID)
	select {
	case <-c.Done():
		t.Fatal("client closed after a delivered reply")
	default:
	}
}

func TestReplyClosesStalledClient(t *testing.T) {
	c := newTestClient(1)
	require.NoError(t, c.Emit(hub.Message{Event: "filler"}))

	c.reply("r1", map[string]bool{"ok": true})
	select {
	case <-c.Done():
	default:
		t.Fatal("stalled client was not closed")
	}
	assert.Len(t, c.send, 1)
}
