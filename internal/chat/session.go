package chat

import "sync"

// SessionDirectory maps logical users to their current websocket connection.
// At most one connection per user: a newer Bind for the same user wins and
// the previous connection is simply no longer addressable through the
// directory (its socket stays open until it disconnects on its own).
type SessionDirectory struct {
	mu     sync.RWMutex
	byUser map[string]string // userID -> connID
	byConn map[string]string // connID -> userID
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Bind registers or overwrites the mapping for userID. Idempotent for
// repeated identical calls.
func (d *SessionDirectory) Bind(userID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byUser[userID]; ok && prev != connID {
		delete(d.byConn, prev)
	}
	d.byUser[userID] = connID
	d.byConn[connID] = userID
}

// Lookup returns the current connection for userID.
func (d *SessionDirectory) Lookup(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	connID, ok := d.byUser[userID]
	return connID, ok
}

// Unbind removes the entry whose current connection is connID. A no-op when
// connID is not a current binding (e.g. already replaced by a newer Bind for
// the same user). It reports the user it unbound, so disconnect handling can
// tell a live session apart from an orphaned one.
func (d *SessionDirectory) Unbind(connID string) (userID string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	userID, ok = d.byConn[connID]
	if !ok {
		return "", false
	}
	delete(d.byConn, connID)
	delete(d.byUser, userID)
	return userID, true
}

// UnbindByUser removes the mapping keyed by user, used when the caller
// already knows the user id (explicit logout).
func (d *SessionDirectory) UnbindByUser(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if connID, ok := d.byUser[userID]; ok {
		delete(d.byConn, connID)
		delete(d.byUser, userID)
	}
}
