package tuya

// Listener receives asynchronous events from a Session: unsolicited DP
// updates pushed by the device, and notice that the connection dropped.
// Both methods are called from the session's receive-loop goroutine and
// must not block for long or call back into the Session synchronously.
type Listener interface {
	// StatusUpdated is called with a snapshot of the session's full DP
	// cache, as a flat dps map (spec.md §4.4), after a device pushes an
	// update on its own and after each successful Status reply.
	StatusUpdated(dps map[string]any)

	// Disconnected is called once, when the receive loop exits for any
	// reason (peer close, transport error, or Session.Close).
	Disconnected(err error)
}

// NopListener discards every event; useful for callers that only want the
// request/response surface (Status, SetDP, ...) and no push notifications.
type NopListener struct{}

func (NopListener) StatusUpdated(map[string]any) {}
func (NopListener) Disconnected(error)           {}
