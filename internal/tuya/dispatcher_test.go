package tuya

import (
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, onUnsolicited func(*Message)) *dispatcher {
	t.Helper()
	key := testKey()
	return newDispatcher(Version33, false, func() []byte { return key }, onUnsolicited)
}

func TestDispatcherRoutesBySeqno(t *testing.T) {
	d := newTestDispatcher(t, nil)
	key := testKey()

	ch, ok := d.register(5)
	if !ok {
		t.Fatal("register(5) failed")
	}

	frame := packMessage55AA(5, CmdDPQuery, []byte(`{"dps":{"1":true}}`), key, false)
	d.feed(frame)

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if res.msg.Seqno != 5 {
			t.Errorf("seqno = %d, want 5", res.msg.Seqno)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed message")
	}
}

func TestDispatcherRoutesOutOfOrderReplies(t *testing.T) {
	d := newTestDispatcher(t, nil)
	key := testKey()

	chA, _ := d.register(1)
	chB, _ := d.register(2)

	// Reply for seqno 2 arrives before the reply for seqno 1.
	frameB := packMessage55AA(2, CmdDPQuery, []byte(`{"dps":{"2":true}}`), key, false)
	frameA := packMessage55AA(1, CmdDPQuery, []byte(`{"dps":{"1":true}}`), key, false)
	d.feed(append(frameB, frameA...))

	select {
	case res := <-chB:
		if res.msg.Seqno != 2 {
			t.Errorf("chB seqno = %d, want 2", res.msg.Seqno)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for seqno 2")
	}
	select {
	case res := <-chA:
		if res.msg.Seqno != 1 {
			t.Errorf("chA seqno = %d, want 1", res.msg.Seqno)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for seqno 1")
	}
}

func TestDispatcherFeedsPartialFrameAcrossCalls(t *testing.T) {
	d := newTestDispatcher(t, nil)
	key := testKey()

	ch, _ := d.register(9)
	frame := packMessage55AA(9, CmdDPQuery, []byte(`{"dps":{"1":false}}`), key, false)

	d.feed(frame[:10])
	select {
	case <-ch:
		t.Fatal("received a result before the full frame arrived")
	default:
	}

	d.feed(frame[10:])
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completed frame")
	}
}

func TestDispatcherHeartbeatRoutesRegardlessOfSeqno(t *testing.T) {
	d := newTestDispatcher(t, nil)
	key := testKey()

	ch, ok := d.register(seqnoHeartbeat)
	if !ok {
		t.Fatal("register(seqnoHeartbeat) failed")
	}

	// Device echoes an arbitrary on-wire seqno for the heartbeat reply.
	frame := packMessage55AA(123, CmdHeartBeat, nil, key, false)
	d.feed(frame)

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for heartbeat reply")
	}
}

func TestDispatcherUnsolicitedPush(t *testing.T) {
	var got *Message
	d := newTestDispatcher(t, func(m *Message) { got = m })
	key := testKey()

	// seqno 0, no waiter registered: looks like an async push.
	frame := packMessage55AA(0, CmdStatus, []byte(`{"dps":{"1":true}}`), key, false)
	d.feed(frame)

	if got == nil {
		t.Fatal("expected onUnsolicited to be called")
	}
	if got.Cmd != CmdStatus {
		t.Errorf("cmd = %v, want %v", got.Cmd, CmdStatus)
	}
}

func TestDispatcherRegisterRejectsDuplicate(t *testing.T) {
	d := newTestDispatcher(t, nil)
	if _, ok := d.register(1); !ok {
		t.Fatal("first register(1) should succeed")
	}
	if _, ok := d.register(1); ok {
		t.Fatal("second register(1) should fail")
	}
}

func TestDispatcherFailAll(t *testing.T) {
	d := newTestDispatcher(t, nil)
	ch1, _ := d.register(1)
	ch2, _ := d.register(2)

	d.failAll(transportError("test", nil))

	for _, ch := range []chan dispatchResult{ch1, ch2} {
		select {
		case res := <-ch:
			if !IsTransport(res.err) {
				t.Errorf("expected transport error, got %v", res.err)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for failAll delivery")
		}
	}
}
