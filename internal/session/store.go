package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efecan0/trading-gateway-go/internal/logger"
)

// Store owns every live session. The index is read-mostly: GetByID runs under
// the read lock, LookupOrCreate and Expire take the write lock.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*Session
	byIdentity map[string]*Session
	ttl        time.Duration
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		byID:       make(map[string]*Session),
		byIdentity: make(map[string]*Session),
		ttl:        ttl,
	}
}

func (st *Store) TTL() time.Duration {
	return st.ttl
}

// LookupOrCreate resolves the identity to its session, creating one when the
// identity is unknown. The second return reports creation. A resumed session
// has its ephemeral fields cleared before it is handed back.
func (st *Store) LookupOrCreate(identity Identity) (*Session, bool) {
	key := identity.key()

	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.byIdentity[key]; ok {
		existing.resume()
		return existing, false
	}

	ses := newSession(uuid.NewString(), identity)
	ses.markConnected()
	st.byID[ses.id] = ses
	st.byIdentity[key] = ses
	logger.Conn(ses.id).DebugF("Session created for client %s device %d", identity.ClientID, identity.DeviceID)
	return ses, true
}

func (st *Store) GetByID(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ses, ok := st.byID[id]
	return ses, ok
}

// Disconnect detaches the session's connection and arms the TTL deadline.
func (st *Store) Disconnect(id string) {
	st.mu.RLock()
	ses, ok := st.byID[id]
	st.mu.RUnlock()
	if !ok {
		return
	}
	ses.markDisconnected(st.ttl)
}

// Expire removes the session from both indexes.
func (st *Store) Expire(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ses, ok := st.byID[id]
	if !ok {
		return
	}
	delete(st.byID, id)
	delete(st.byIdentity, ses.identity.key())
	logger.Conn(id).DebugF("Session expired")
}

// Sweep evicts every session whose deadline passed with no connection attached
// and returns the evicted ids so the caller can drop pending queues and room
// membership.
func (st *Store) Sweep() []string {
	nowMs := time.Now().UnixMilli()

	st.mu.Lock()
	defer st.mu.Unlock()

	var expired []string
	for id, ses := range st.byID {
		if ses.expired(nowMs) {
			delete(st.byID, id)
			delete(st.byIdentity, ses.identity.key())
			expired = append(expired, id)
		}
	}
	return expired
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
