package chat

import (
	"encoding/json"
	"log/slog"
)

// CallRelay forwards WebRTC signaling messages between two addressed peers.
// It keeps no call state at all: ringing/connected/ended live client-side,
// the relay only does addressing through the session directory.
type CallRelay struct {
	sessions *SessionDirectory
	out      Delivery
	log      *slog.Logger
}

func NewCallRelay(sessions *SessionDirectory, out Delivery, log *slog.Logger) *CallRelay {
	return &CallRelay{sessions: sessions, out: out, log: log}
}

// Relay forwards the raw signaling payload to the target user's current
// connection. initiate-call is surfaced to the callee as incoming-call and
// is the only type that reports "user not reachable" back to the sender:
// for answer/ICE/end the caller already learned reachability at initiation
// time, so an unbound target is just dropped.
func (c *CallRelay) Relay(connID, event string, raw json.RawMessage) {
	var p CallPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.TargetID == "" {
		c.out.ToConn(connID, EvError, ErrorPayload{Event: event, Reason: "missing targetId"})
		return
	}

	target, ok := c.sessions.Lookup(p.TargetID)
	if !ok {
		if event == EvInitiateCall {
			c.out.ToConn(connID, EvCallError, ErrorPayload{Event: event, Reason: "user not reachable"})
		} else {
			c.log.Debug("dropping signal for unbound target", "event", event, "target", p.TargetID)
		}
		return
	}

	outEvent := event
	if event == EvInitiateCall {
		outEvent = EvIncomingCall
	}
	c.out.ToConn(target, outEvent, raw)
}
