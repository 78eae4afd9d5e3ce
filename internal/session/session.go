package session

import (
	"sync"
	"time"
)

// Recognized field keys. Only the hello-owned identity fields and the room
// subscriptions survive a reconnect; rate-limit stamps and order echoes are
// per-connection state.
const (
	FieldAuthenticated   = "authenticated"
	FieldUserID          = "userId"
	FieldRoles           = "roles"
	FieldSubscribedRooms = "subscribedRooms"
	FieldLastOrderID     = "lastOrderId"
	FieldLastOrderStatus = "lastOrderStatus"
)

type fieldEntry struct {
	value   FieldValue
	persist bool
}

// Session is the per-client state container. The store exclusively owns
// Session objects; handlers hold borrowed references scoped to one invocation.
type Session struct {
	id       string
	identity Identity

	mu        sync.Mutex
	fields    map[string]fieldEntry
	connected bool
	expiryMs  int64 // absolute wall-clock deadline, 0 while a connection is attached
}

func newSession(id string, identity Identity) *Session {
	return &Session{
		id:       id,
		identity: identity,
		fields:   make(map[string]fieldEntry),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Identity() Identity {
	return s.identity
}

func (s *Session) SetField(key string, value FieldValue, persistAcrossReconnect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[key] = fieldEntry{value: value.copy(), persist: persistAcrossReconnect}
}

func (s *Session) GetField(key string) (FieldValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.fields[key]
	if !ok {
		return FieldValue{}, false
	}
	return entry.value.copy(), true
}

func (s *Session) GetStringField(key string) (string, bool) {
	v, ok := s.GetField(key)
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// ExpiryMs is 0 while a connection is attached.
func (s *Session) ExpiryMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiryMs
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) markConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.expiryMs = 0
}

func (s *Session) markDisconnected(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.expiryMs = time.Now().UnixMilli() + ttl.Milliseconds()
}

// resume rebinds a new connection to a disconnected session. Ephemeral fields
// belong to the old connection and are dropped.
func (s *Session) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		// Second live connection with the same identity: nothing to clear.
		return
	}
	for key, entry := range s.fields {
		if !entry.persist {
			delete(s.fields, key)
		}
	}
	s.connected = true
	s.expiryMs = 0
}

func (s *Session) expired(nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.connected && s.expiryMs != 0 && nowMs > s.expiryMs
}
