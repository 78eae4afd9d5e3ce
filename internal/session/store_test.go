package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(clientID string) Identity {
	var token [16]byte
	copy(token[:], clientID)
	return Identity{ClientID: clientID, DeviceID: 42, SessionToken: token}
}

func TestLookupOrCreateResolvesSameIdentity(t *testing.T) {
	store := NewStore(30 * time.Second)

	first, created := store.LookupOrCreate(testIdentity("trader-1"))
	require.True(t, created)

	second, created := store.LookupOrCreate(testIdentity("trader-1"))
	require.False(t, created)
	assert.Equal(t, first.ID(), second.ID())

	other, created := store.LookupOrCreate(testIdentity("trader-2"))
	require.True(t, created)
	assert.NotEqual(t, first.ID(), other.ID())
}

func TestEphemeralFieldsClearedOnResume(t *testing.T) {
	store := NewStore(30 * time.Second)

	ses, _ := store.LookupOrCreate(testIdentity("trader-1"))
	ses.SetField(FieldUserID, StringField("trader-user-123"), true)
	ses.SetField("rateLimit_orders.place", IntField(12345), false)

	store.Disconnect(ses.ID())
	resumed, created := store.LookupOrCreate(testIdentity("trader-1"))
	require.False(t, created)

	_, ok := resumed.GetField("rateLimit_orders.place")
	assert.False(t, ok, "ephemeral field must not survive reconnect")

	userID, ok := resumed.GetStringField(FieldUserID)
	require.True(t, ok)
	assert.Equal(t, "trader-user-123", userID)
}

func TestFieldValueSemantics(t *testing.T) {
	store := NewStore(30 * time.Second)
	ses, _ := store.LookupOrCreate(testIdentity("trader-1"))

	rooms := []string{"market:BTC-USD"}
	ses.SetField(FieldSubscribedRooms, StringListField(rooms), true)
	rooms[0] = "market:ETH-USD"

	got, ok := ses.GetField(FieldSubscribedRooms)
	require.True(t, ok)
	assert.Equal(t, []string{"market:BTC-USD"}, got.List)

	got.List[0] = "market:DOGE-USD"
	again, _ := ses.GetField(FieldSubscribedRooms)
	assert.Equal(t, []string{"market:BTC-USD"}, again.List)
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	store := NewStore(10 * time.Millisecond)

	gone, _ := store.LookupOrCreate(testIdentity("gone"))
	stays, _ := store.LookupOrCreate(testIdentity("stays"))

	store.Disconnect(gone.ID())
	time.Sleep(30 * time.Millisecond)

	expired := store.Sweep()
	assert.Equal(t, []string{gone.ID()}, expired)

	_, ok := store.GetByID(gone.ID())
	assert.False(t, ok)
	_, ok = store.GetByID(stays.ID())
	assert.True(t, ok)

	// Expired identity now creates a brand new session.
	fresh, created := store.LookupOrCreate(testIdentity("gone"))
	assert.True(t, created)
	assert.NotEqual(t, gone.ID(), fresh.ID())
}

func TestConnectedSessionNeverSweeps(t *testing.T) {
	store := NewStore(time.Millisecond)
	ses, _ := store.LookupOrCreate(testIdentity("live"))
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, store.Sweep())
	_, ok := store.GetByID(ses.ID())
	assert.True(t, ok)
}
