package chat

import (
	"sync"
	"time"
)

// WhiteboardRelay broadcasts shared-canvas snapshots to a room with a short
// per-connection debounce, so rapid local edits coalesce into one frame.
// Convergence is last-writer-wins on the full element set: receivers replace
// their local state wholesale. The relay holds no authoritative copy; a room
// whose last member leaves loses its whiteboard, which is accepted.
type WhiteboardRelay struct {
	mu      sync.Mutex
	pending map[string]*pendingFrame // connID -> frame awaiting debounce fire
	// seq is monotonic across all connections; each armed timer carries the
	// sequence it was armed at so a timer already firing when a new Update
	// stops it cannot flush the rearmed frame early.
	seq uint64

	out      Delivery
	debounce time.Duration
}

type pendingFrame struct {
	timer   *time.Timer
	payload WhiteboardPayload
	gen     uint64
}

func NewWhiteboardRelay(out Delivery, debounce time.Duration) *WhiteboardRelay {
	return &WhiteboardRelay{
		pending:  make(map[string]*pendingFrame),
		out:      out,
		debounce: debounce,
	}
}

// Update records the connection's latest snapshot and clear-resets its
// debounce timer. When the timer fires, the newest snapshot is broadcast to
// the room excluding the sender; excluding the sender is what keeps a
// received remote update from echoing back forever.
func (w *WhiteboardRelay) Update(connID string, p WhiteboardPayload) {
	if p.RoomID == "" {
		w.out.ToConn(connID, EvError, ErrorPayload{Event: EvWhiteboardUpdate, Reason: "missing roomId"})
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	gen := w.seq
	if f, ok := w.pending[connID]; ok {
		f.timer.Stop()
		f.payload = p
		f.gen = gen
		f.timer = time.AfterFunc(w.debounce, func() { w.flush(connID, gen) })
		return
	}
	f := &pendingFrame{payload: p, gen: gen}
	f.timer = time.AfterFunc(w.debounce, func() { w.flush(connID, gen) })
	w.pending[connID] = f
}

// RequestState asks the other members of the room for a full snapshot. The
// request carries the requester's connection id so the first responding peer
// can be routed straight back.
func (w *WhiteboardRelay) RequestState(connID string, p WhiteboardPayload) {
	if p.RoomID == "" {
		w.out.ToConn(connID, EvError, ErrorPayload{Event: EvWhiteboardReqState, Reason: "missing roomId"})
		return
	}
	w.out.ToRoomExcept(p.RoomID, connID, EvWhiteboardStateRq, WhiteboardPayload{
		RoomID:     p.RoomID,
		TargetConn: connID,
	})
}

// State relays a peer's full-snapshot answer to the requesting connection.
// Whichever peer responds first wins; later answers simply overwrite, which
// is consistent with the last-writer-wins policy.
func (w *WhiteboardRelay) State(connID string, p WhiteboardPayload) {
	if p.TargetConn == "" {
		w.out.ToConn(connID, EvError, ErrorPayload{Event: EvWhiteboardState, Reason: "missing targetConn"})
		return
	}
	target := p.TargetConn
	p.TargetConn = ""
	w.out.ToConn(target, EvWhiteboardState, p)
}

// Cancel drops any pending debounce frame for a disconnecting connection.
func (w *WhiteboardRelay) Cancel(connID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.pending[connID]; ok {
		f.timer.Stop()
		delete(w.pending, connID)
	}
}

// flush delivers the frame armed at generation gen. A stale fire (the frame
// was rearmed or cancelled while this callback was blocked) leaves the
// current debounce window untouched.
func (w *WhiteboardRelay) flush(connID string, gen uint64) {
	w.mu.Lock()
	f, ok := w.pending[connID]
	if !ok || f.gen != gen {
		w.mu.Unlock()
		return
	}
	delete(w.pending, connID)
	payload := f.payload
	w.mu.Unlock()

	w.out.ToRoomExcept(payload.RoomID, connID, EvWhiteboardUpdate, payload)
}
