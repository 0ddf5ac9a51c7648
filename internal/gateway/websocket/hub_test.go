package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func readFrame(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return WSMessage{}
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := runHub(t)
	client := NewClient(hub, nil)

	hub.Register(client)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Subscribe(client, "thread-1")
	assert.Equal(t, 1, hub.SubscriberCount("thread-1"))

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.SubscriberCount("thread-1"))

	_, open := <-client.send
	assert.False(t, open, "send channel closed on unregister")
	assert.False(t, client.enqueue([]byte("late")), "closed client rejects frames")
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil)

	hub.Subscribe(client, "thread-1")
	hub.Subscribe(client, "thread-2")
	assert.True(t, client.threads["thread-1"])
	assert.Equal(t, 1, hub.SubscriberCount("thread-2"))

	hub.Unsubscribe(client, "thread-1")
	assert.False(t, client.threads["thread-1"])
	assert.Zero(t, hub.SubscriberCount("thread-1"))
	_, ok := hub.threads["thread-1"]
	assert.False(t, ok, "empty thread entry removed")
}

func TestHubPublish(t *testing.T) {
	hub := runHub(t)

	subscribed := NewClient(hub, nil)
	other := NewClient(hub, nil)
	hub.Register(subscribed)
	hub.Register(other)
	hub.Subscribe(subscribed, "thread-1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.True(t, hub.Publish(TypeSummary, "thread-1", map[string]int{"sequence": 3}))

	msg := readFrame(t, subscribed)
	assert.Equal(t, TypeSummary, msg.Type)
	assert.Equal(t, "thread-1", msg.Thread)
	assert.JSONEq(t, `{"sequence":3}`, string(msg.Data))

	select {
	case <-other.send:
		t.Fatal("unsubscribed client received thread event")
	case <-time.After(50 * time.Millisecond):
	}

	// 空线程广播给所有客户端
	require.True(t, hub.Publish(TypeConfigReloaded, "", map[string]int{"max_window": 30}))
	assert.Equal(t, TypeConfigReloaded, readFrame(t, subscribed).Type)
	assert.Equal(t, TypeConfigReloaded, readFrame(t, other).Type)
}

func TestHubPublish_QueueFull(t *testing.T) {
	// Run is never started, so the queue fills up.
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		require.True(t, hub.Publish(TypeSummary, "t", i))
	}
	assert.False(t, hub.Publish(TypeSummary, "t", "overflow"))
}

func TestHubStop(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	client := NewClient(hub, nil)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Zero(t, hub.ClientCount())

	// Register after Stop must not block.
	hub.Register(NewClient(hub, nil))
}
