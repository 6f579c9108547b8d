// bus/bus_test.go
package bus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func recvPayload(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("payload %#v, want %q", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func recvNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message on %v: %#v", sub.Topic(), got)
	case <-time.After(50 * time.Millisecond):
	}
}

// collect reads exactly n string payloads and returns them sorted.
func collect(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.After(300 * time.Millisecond)
	for len(out) < n {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				t.Fatalf("non-string payload %#v", m.Payload)
			}
			out = append(out, s)
		case <-deadline:
			t.Fatalf("got %d of %d messages: %v", len(out), n, out)
		}
	}
	recvNothing(t, sub)
	sort.Strings(out)
	return out
}

func joined(s []string) string { return strings.Join(s, ",") }

// -----------------------------------------------------------------------------
// Publish / subscribe
// -----------------------------------------------------------------------------

func TestPublish_ExactTopic(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	sub := c.Subscribe(T("config", "hal"))
	other := c.Subscribe(T("config", "heartbeat"))

	c.Publish(c.NewMessage(T("config", "hal"), "cfg", false))
	recvPayload(t, sub, "cfg")
	recvNothing(t, other)
}

func TestRetained_ReplayedOnSubscribe(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	c.Publish(c.NewMessage(T("hal", "state"), "idle", true))
	c.Publish(c.NewMessage(T("hal", "state"), "ready", true))

	sub := c.Subscribe(T("hal", "state"))
	recvPayload(t, sub, "ready")
	recvNothing(t, sub)
}

func TestRetained_NilPayloadClears(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(c.NewMessage(T("hal", "cap", "power", "battery", "main", "value"), "50", true))
	c.Publish(c.NewMessage(T("hal", "cap", "power", "charger", "usb", "value"), "on", true))
	c.Publish(c.NewMessage(T("hal", "cap", "power", "battery", "main", "value"), nil, true))

	s := c.Subscribe(T("hal", "cap", "#"))
	if got := collect(t, s, 1); joined(got) != "on" {
		t.Fatalf("after clear got %v", got)
	}
}

// -----------------------------------------------------------------------------
// Wildcards
// -----------------------------------------------------------------------------

func TestWildcard_Matching(t *testing.T) {
	cases := []struct {
		pattern Topic
		topic   Topic
		match   bool
	}{
		{T("hal", "cap", "+", "+", "+", "control", "+"), T("hal", "cap", "power", "battery", "main", "control", "read"), true},
		{T("hal", "cap", "+", "+", "+", "control", "+"), T("hal", "cap", "power", "battery", "main", "value"), false},
		{T("hal", "cap", "power", "+", "main", "value"), T("hal", "cap", "power", "charge_full", "main", "value"), true},
		{T("hal", "cap", "power", "+", "main", "value"), T("hal", "cap", "power", "charger", "usb", "value"), false},
		{T("hal", "#"), T("hal"), true},
		{T("hal", "#"), T("hal", "state"), true},
		{T("hal", "#"), T("config", "hal"), false},
		{T("#"), T("sys", "heartbeat"), true},
		{T("hal", "+"), T("hal"), false},
		{T("hal", "+"), T("hal", "state", "x"), false},
		{T("hal", "+", "#"), T("hal", "cap", "power"), true},
		{T("hal", "state"), T("hal"), false},
		// Non-string tokens compare by value.
		{T("dev", 1, "+"), T("dev", 1, "x"), true},
		{T("dev", 1, "+"), T("dev", int64(1), "x"), false},
	}
	for _, tc := range cases {
		b := NewBus(4)
		c := b.NewConnection("test")
		sub := c.Subscribe(tc.pattern)
		c.Publish(c.NewMessage(tc.topic, "m", false))
		if tc.match {
			recvPayload(t, sub, "m")
		} else {
			recvNothing(t, sub)
		}
	}
}

func TestWildcard_RetainedReplay(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(c.NewMessage(T("hal"), "root", true))
	c.Publish(c.NewMessage(T("hal", "state"), "ready", true))
	c.Publish(c.NewMessage(T("hal", "cap", "power"), "dom", true))
	c.Publish(c.NewMessage(T("hal", "info"), "info", true))

	cases := []struct {
		pattern Topic
		want    []string
	}{
		{T("hal", "#"), []string{"dom", "info", "ready", "root"}},
		{T("hal", "+", "#"), []string{"dom", "info", "ready"}},
		{T("hal", "+"), []string{"info", "ready"}},
		{T("hal", "cap", "+"), []string{"dom"}},
	}
	for _, tc := range cases {
		s := c.Subscribe(tc.pattern)
		got := collect(t, s, len(tc.want))
		if joined(got) != joined(tc.want) {
			t.Errorf("%v: got %v want %v", tc.pattern, got, tc.want)
		}
		c.Unsubscribe(s)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func TestRequestWait_Reply(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")
	respConn := b.NewConnection("responder")

	ctrl := T("hal", "cap", "power", "battery", "main", "control", "read")
	respSub := respConn.Subscribe(ctrl)
	defer respConn.Unsubscribe(respSub)

	go func() {
		if msg, ok := <-respSub.Channel(); ok {
			respConn.Reply(msg, "ok", false)
		}
	}()

	req := reqConn.NewMessage(ctrl, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	reply, err := reqConn.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("RequestWait: %v", err)
	}
	if reply.Payload != "ok" {
		t.Fatalf("reply payload %#v", reply.Payload)
	}
	if !req.CanReply() || req.ReplyTo.At(0) != replyPrefix {
		t.Fatalf("request inbox %v", req.ReplyTo)
	}
	if len(reply.Topic) != len(req.ReplyTo) || reply.Topic.At(1) != req.ReplyTo.At(1) {
		t.Fatalf("reply topic %v != inbox %v", reply.Topic, req.ReplyTo)
	}
}

func TestRequestWait_Inboxes_Unique(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("c")
	m1 := c.NewMessage(T("x"), nil, false)
	m2 := c.NewMessage(T("x"), nil, false)
	c.Unsubscribe(c.Request(m1))
	c.Unsubscribe(c.Request(m2))
	if m1.ReplyTo.At(1) == m2.ReplyTo.At(1) {
		t.Fatalf("inboxes collide: %v", m1.ReplyTo)
	}
}

func TestRequestWait_ContextExpiry(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("requester")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.RequestWait(ctx, c.NewMessage(T("nobody", "home"), nil, false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestRequestWait_InboxClosed(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("requester")
	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Disconnect()
	}()
	_, err := c.RequestWait(context.Background(), c.NewMessage(T("nobody"), nil, false))
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("want ErrNoReply, got %v", err)
	}
}

func TestReply_NoReplyTo(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	all := c.Subscribe(T("#"))

	m := c.NewMessage(T("x"), nil, false)
	if m.CanReply() {
		t.Fatal("plain message should not be replyable")
	}
	c.Reply(m, "ignored", false)
	recvNothing(t, all)
}

// -----------------------------------------------------------------------------
// Topics, queues, lifecycle
// -----------------------------------------------------------------------------

func TestTopic_InvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token")
		}
	}()
	_ = T("hal", []byte{1})
}

func TestTopic_AppendDoesNotAlias(t *testing.T) {
	base := T("hal", "cap")
	a := base.Append("power", "battery")
	b := base.Append("power", "charger")
	if a.Len() != 4 || b.Len() != 4 {
		t.Fatalf("unexpected lengths %d %d", a.Len(), b.Len())
	}
	if a.At(3) != "battery" || b.At(3) != "charger" {
		t.Fatalf("append aliased: %v %v", a, b)
	}
	if base.Len() != 2 {
		t.Fatalf("base modified: %v", base)
	}
	if a.At(9) != nil || a.At(-1) != nil {
		t.Fatal("At out of range should be nil")
	}
}

func TestQueueFull_DropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(T("hal", "cap", "power", "battery", "main", "value"))

	for _, p := range []string{"25", "50", "75"} {
		c.Publish(c.NewMessage(s.Topic(), p, false))
	}
	recvPayload(t, s, "50")
	recvPayload(t, s, "75")
}

func TestDisconnect_ClosesSubscriptions(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s1 := c.Subscribe(T("hal", "state"))
	s2 := c.Subscribe(T("hal", "#"))

	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatal("expected closed channel after Disconnect")
		}
	}
	c.Unsubscribe(s1) // no-op
	s2.Unsubscribe()  // no-op

	// Publishing after disconnect must not panic.
	c.Publish(c.NewMessage(T("hal", "state"), "x", false))
	if c.ID() != "test" {
		t.Fatalf("ID=%q", c.ID())
	}
}
