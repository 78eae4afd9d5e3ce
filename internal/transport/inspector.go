package transport

import (
	"errors"
	"net/http"

	"github.com/efecan0/trading-gateway-go/internal/auth"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

var ErrHandshakeRejected = errors.New("trading authentication failed")

// HandshakeInspector extracts the client identity from the upgrade request
// and authorizes it before any session is bound.
type HandshakeInspector interface {
	Extract(r *http.Request) (session.Identity, error)
	Authorize(identity session.Identity, r *http.Request) bool
}

// TradingHandshakeInspector reads clientId/deviceId/token/sessionToken from
// the connection URL. Token resolution follows the documented opaque mapping;
// the resolved user becomes the identity's clientId.
type TradingHandshakeInspector struct {
	jwtSecret string
}

func NewTradingHandshakeInspector(jwtSecret string) *TradingHandshakeInspector {
	return &TradingHandshakeInspector{jwtSecret: jwtSecret}
}

func (i *TradingHandshakeInspector) Extract(r *http.Request) (session.Identity, error) {
	query := r.URL.Query()
	clientID := query.Get("clientId")
	deviceID := query.Get("deviceId")
	token := query.Get("token")
	sessionToken := query.Get("sessionToken")

	if token != "" {
		if userID, _ := auth.ResolveToken(token); userID != "" {
			clientID = userID
		}
	}

	if deviceID == "" {
		deviceID = r.Header.Get("x-device-id")
	}

	if clientID == "" {
		logger.Warn("Handshake rejected: missing user identification")
		return session.Identity{}, ErrHandshakeRejected
	}

	if deviceID == "" {
		deviceID = "trading-device-" + clientID
	}

	identity := session.Identity{
		ClientID: clientID,
		DeviceID: auth.NumericDeviceID(deviceID),
	}

	if parsed, ok := auth.ParseSessionToken(sessionToken); ok {
		identity.SessionToken = parsed
	} else {
		identity.SessionToken = auth.MintSessionToken(clientID, identity.DeviceID, i.jwtSecret)
	}

	return identity, nil
}

func (i *TradingHandshakeInspector) Authorize(identity session.Identity, r *http.Request) bool {
	logger.DebugF("Authorizing user %s with device %d", identity.ClientID, identity.DeviceID)
	return true
}
