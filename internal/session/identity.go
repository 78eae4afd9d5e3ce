package session

import (
	"encoding/hex"
	"fmt"
)

// Identity is the stable triple that routes a connection to a session across
// reconnects. DeviceID is already numeric here; the handshake inspector hashes
// non-numeric device ids before building an Identity.
type Identity struct {
	ClientID     string
	DeviceID     int
	SessionToken [16]byte
}

func (id Identity) TokenHex() string {
	return hex.EncodeToString(id.SessionToken[:])
}

// key indexes the identity in the store. Two connections presenting the same
// triple resolve to the same session.
func (id Identity) key() string {
	return fmt.Sprintf("%s|%d|%s", id.ClientID, id.DeviceID, id.TokenHex())
}
