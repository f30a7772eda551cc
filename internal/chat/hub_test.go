package chat

import (
	"testing"

	"go-chat-engine/internal/user"
)

func newTestClient(name string) *Client {
	return NewClient(nil, user.Identity{UserID: "id-" + name, Username: name})
}

func TestPersonalChannelFoldsCase(t *testing.T) {
	if PersonalChannel(" Alice ") != PersonalChannel("alice") {
		t.Fatal("personal channel must not depend on case")
	}
	if PersonalChannel("alice") != "user:alice" {
		t.Fatalf("got %q", PersonalChannel("alice"))
	}
}

func TestHubBroadcastReachesSubscribersOnly(t *testing.T) {
	h := NewHub()
	a, b, c := newTestClient("a"), newTestClient("b"), newTestClient("c")
	h.Subscribe(a, "room")
	h.Subscribe(b, "room")
	h.Subscribe(b, "room") // idempotent
	h.Subscribe(c, "other")

	n, err := h.Broadcast("room", "ping", map[string]int{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	if len(a.send) != 1 || len(b.send) != 1 || len(c.send) != 0 {
		t.Fatalf("queues a=%d b=%d c=%d", len(a.send), len(b.send), len(c.send))
	}
	if got := string(<-a.send); got != `{"event":"ping","data":{"n":1}}` {
		t.Fatalf("frame = %s", got)
	}
}

func TestHubRemoveDropsAllSubscriptions(t *testing.T) {
	h := NewHub()
	a := newTestClient("a")
	h.Subscribe(a, "x")
	h.Subscribe(a, "y")

	h.Remove(a)

	if h.Subscribers("x") != 0 || h.Subscribers("y") != 0 {
		t.Fatal("client still subscribed after Remove")
	}
	if _, ok := <-a.send; ok {
		t.Fatal("send queue should be closed")
	}
	h.Remove(a) // second call is a no-op
	if n, _ := h.Broadcast("x", "ping", nil); n != 0 {
		t.Fatalf("removed client received %d frames", n)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	a := newTestClient("a")
	h.Subscribe(a, "x")
	h.Unsubscribe(a, "x")
	if h.IsSubscribed(a, "x") {
		t.Fatal("still subscribed")
	}
	h.Unsubscribe(a, "never-joined")
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	h := NewHub()
	slow := newTestClient("slow")
	fast := newTestClient("fast")
	h.Subscribe(slow, "room")
	h.Subscribe(fast, "room")

	for i := 0; i < sendBuffer; i++ {
		h.Broadcast("room", "tick", i)
		<-fast.send
	}
	n, _ := h.Broadcast("room", "tick", "overflow")
	if n != 1 {
		t.Fatalf("delivered to %d, want only the fast client", n)
	}

	drained := 0
	for range slow.send {
		drained++
	}
	if drained != sendBuffer {
		t.Fatalf("slow client kept %d frames, want %d", drained, sendBuffer)
	}
	if slow.deliver([]byte("late")) {
		t.Fatal("evicted client accepted a frame")
	}
	if !fast.deliver([]byte("still alive")) {
		t.Fatal("fast client was affected")
	}
}

func TestKeyedMutexForgetsIdleKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	if k.size() != 2 {
		t.Fatalf("size = %d", k.size())
	}
	unlockA()
	unlockB()
	if k.size() != 0 {
		t.Fatalf("size = %d after unlock", k.size())
	}
}
