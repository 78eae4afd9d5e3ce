// Package auth holds the opaque token-to-identity mapping and the session
// token minting used by both the handshake inspector and the hello handler.
// The mapping is the documented reference behavior, not a real JWT verifier.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// ResolveToken maps a bearer token to its (userId, roles) tuple. Any
// non-empty token authenticates; unknown tokens fall back to a viewer
// identity derived from the token prefix.
func ResolveToken(token string) (string, []string) {
	if token == "" {
		return "", nil
	}
	switch {
	case strings.Contains(token, "admin"):
		return "admin-user-789", []string{"admin", "trader", "viewer"}
	case strings.Contains(token, "trader"):
		return "trader-user-123", []string{"trader", "viewer"}
	case strings.Contains(token, "viewer"):
		return "viewer-user-456", []string{"viewer"}
	case strings.Contains(token, "demo"):
		return "demo-user-001", []string{"viewer"}
	}
	prefix := token
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "authenticated-user-" + prefix, []string{"viewer"}
}

// MintSessionToken derives a fresh 16-byte session token.
func MintSessionToken(clientID string, deviceID int, serverSecret string) [16]byte {
	raw := fmt.Sprintf("%s:%d:%d:%s", clientID, deviceID, time.Now().UnixMilli(), serverSecret)
	sum := sha256.Sum256([]byte(raw))
	var token [16]byte
	copy(token[:], sum[:16])
	return token
}

// ParseSessionToken accepts exactly 32 hex characters; anything else tells
// the caller to mint a new token.
func ParseSessionToken(hexToken string) ([16]byte, bool) {
	var token [16]byte
	if len(hexToken) != 32 {
		return token, false
	}
	decoded, err := hex.DecodeString(hexToken)
	if err != nil {
		return token, false
	}
	copy(token[:], decoded)
	return token, true
}

// NumericDeviceID parses the device id, hashing non-numeric values into the
// same space.
func NumericDeviceID(deviceID string) int {
	if n, err := strconv.Atoi(deviceID); err == nil {
		return n
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return int(h.Sum32() % 1000000)
}
