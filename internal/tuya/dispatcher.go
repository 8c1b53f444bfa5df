package tuya

import (
	"sync"
)

// dispatchResult is what a waiter receives: either a decoded message or the
// error that prevented one from being decoded for its seqno.
type dispatchResult struct {
	msg *Message
	err error
}

// KeyFunc returns the key currently active for decrypting/verifying inbound
// frames: the device's local key before the session-key handshake
// completes, the negotiated session key afterward.
type KeyFunc func() []byte

// dispatcher owns the single per-connection byte buffer and the table of
// goroutines waiting on a reply, per spec.md §4.5. It is not safe for
// concurrent use by more than one reader goroutine at a time feeding it, but
// Register/cancel may be called from other goroutines (the session's
// exchange calls) while the receive loop is blocked in a network read.
type dispatcher struct {
	mu      sync.Mutex
	buf     []byte
	waiters map[int64]chan dispatchResult

	version Version
	useHMAC bool
	key     KeyFunc

	// onUnsolicited is invoked for frames that carry no seqno a waiter is
	// registered for and look like an asynchronous status push (device-
	// initiated DP change broadcasts, spec.md §4.5 case 4).
	onUnsolicited func(*Message)
}

func newDispatcher(version Version, useHMAC bool, key KeyFunc, onUnsolicited func(*Message)) *dispatcher {
	return &dispatcher{
		waiters:       make(map[int64]chan dispatchResult),
		version:       version,
		useHMAC:       useHMAC,
		key:           key,
		onUnsolicited: onUnsolicited,
	}
}

// register reserves seqno for a pending reply and returns the channel it
// will arrive on. Registering an already-registered seqno is a programmer
// error (the session layer must not reuse an in-flight seqno) and returns
// ok=false instead of silently clobbering the earlier waiter.
func (d *dispatcher) register(seqno int64) (ch chan dispatchResult, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.waiters[seqno]; exists {
		return nil, false
	}
	ch = make(chan dispatchResult, 1)
	d.waiters[seqno] = ch
	return ch, true
}

// cancel removes a waiter without it having received a reply, e.g. when a
// caller's context is done. It is always safe to call even if the waiter
// already fired.
func (d *dispatcher) cancel(seqno int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.waiters, seqno)
}

// feed appends newly-read bytes to the dispatcher's buffer and decodes and
// routes as many complete frames as are present. It returns once no more
// complete frames remain; bytes that do not start a known prefix are
// dropped one at a time until the buffer resyncs or runs empty.
func (d *dispatcher) feed(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, data...)
	for {
		total, ok, err := parseHeader(d.buf)
		if err != nil {
			// Unrecognized prefix: drop one byte and try to resync rather
			// than discarding the whole buffer, in case a stray byte (e.g.
			// a half-consumed previous frame) shifted our alignment.
			if len(d.buf) > 0 {
				d.buf = d.buf[1:]
				continue
			}
			return
		}
		if !ok {
			return
		}
		if total > len(d.buf) {
			return
		}

		frame := d.buf[:total]
		d.buf = d.buf[total:]

		msg, decErr := d.decodeFrame(frame)
		d.route(msg, decErr)
	}
}

func (d *dispatcher) decodeFrame(frame []byte) (*Message, error) {
	key := d.key()
	switch {
	case len(frame) >= 4 && isPrefix(frame, prefix55AA):
		return unpackMessage55AA(frame, key, d.useHMAC)
	case len(frame) >= 4 && isPrefix(frame, prefix6699):
		return unpackMessage6699(frame, key)
	default:
		return nil, decodeErrorf("dispatcher.decodeFrame", "frame has neither known prefix")
	}
}

func isPrefix(frame []byte, prefix uint32) bool {
	return len(frame) >= 4 &&
		frame[0] == byte(prefix>>24) && frame[1] == byte(prefix>>16) &&
		frame[2] == byte(prefix>>8) && frame[3] == byte(prefix)
}

// route implements the dispatcher's delivery rules, in order (spec.md §4.5):
//  1. A waiter registered under the message's own seqno always wins.
//  2. cmd == HEART_BEAT routes to the reserved seqnoHeartbeat waiter.
//  3. cmd == SESS_KEY_NEG_RESP routes to the reserved seqnoSessionKey waiter.
//  4. cmd ∈ {UPDATE_DPS, STATUS}: a pending RESET waiter takes it; otherwise
//     STATUS with no waiter is an asynchronous push, delivered to
//     onUnsolicited (UPDATE_DPS with no RESET waiter is simply dropped).
//  5. cmd == CONTROL_NEW with no matching waiter is an ack, no action.
//  6. Anything else with no matching waiter is silently dropped.
func (d *dispatcher) route(msg *Message, err error) {
	if err != nil {
		// No seqno could be read at all; nothing to attribute this to.
		return
	}

	seqno := int64(msg.Seqno)
	if ch, ok := d.waiters[seqno]; ok {
		delete(d.waiters, seqno)
		ch <- dispatchResult{msg: msg}
		return
	}

	if msg.Cmd == CmdHeartBeat {
		if ch, ok := d.waiters[seqnoHeartbeat]; ok {
			delete(d.waiters, seqnoHeartbeat)
			ch <- dispatchResult{msg: msg}
			return
		}
		return
	}

	if msg.Cmd == CmdSessKeyNegResp {
		if ch, ok := d.waiters[seqnoSessionKey]; ok {
			delete(d.waiters, seqnoSessionKey)
			ch <- dispatchResult{msg: msg}
			return
		}
		return
	}

	if msg.Cmd == CmdUpdateDPS || msg.Cmd == CmdStatus {
		if ch, ok := d.waiters[seqnoReset]; ok {
			delete(d.waiters, seqnoReset)
			ch <- dispatchResult{msg: msg}
			return
		}
		if msg.Cmd == CmdStatus && d.onUnsolicited != nil {
			d.onUnsolicited(msg)
		}
		return
	}

	// CmdControlNew with no matching waiter is a bare ack: nothing to do.
	// Everything else with no matching waiter is dropped.
}

// failAll delivers a transport-level error to every outstanding waiter,
// used when the connection is closed or reset while exchanges are pending.
func (d *dispatcher) failAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for seqno, ch := range d.waiters {
		ch <- dispatchResult{err: err}
		delete(d.waiters, seqno)
	}
}
