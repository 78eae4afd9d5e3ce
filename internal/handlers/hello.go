package handlers

import (
	"github.com/efecan0/trading-gateway-go/internal/auth"
	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

func (d *Deps) handleHello(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)

	token := stringValue(request, "token", "")
	clientID := stringValue(request, "clientId", "")

	if token == "" || clientID == "" {
		d.replyError(ctx, "INVALID_PARAMS", "Missing required parameters: token, clientId")
		return
	}

	userID, roles := auth.ResolveToken(token)
	if userID == "" {
		d.replyError(ctx, "AUTH_FAILED", "Invalid or expired token")
		return
	}

	ses := ctx.Session
	ses.SetField(session.FieldUserID, session.StringField(userID), true)
	ses.SetField("clientId", session.StringField(clientID), true)
	ses.SetField("deviceId", session.StringField(stringValue(request, "deviceId", "")), true)
	ses.SetField(session.FieldRoles, session.JSONField(roles), true)
	ses.SetField(session.FieldAuthenticated, session.StringField("true"), true)

	logger.Conn(ses.ID()).InfoF("Authenticated user %s with roles %v", userID, roles)

	ctx.Reply(map[string]interface{}{
		"sessionId":       ses.ID(),
		"userId":          userID,
		"roles":           roles,
		"token":           ses.Identity().TokenHex(),
		"sessionExpiryMs": ses.ExpiryMs(),
		"message":         "Welcome to Advanced Bull Trading Server!",
		"features": map[string]string{
			"qos":        "AtLeastOnce for orders",
			"rooms":      "Market data subscriptions",
			"middleware": "Authentication & rate limiting",
			"reliable":   "Session state management",
		},
	})
}

func (d *Deps) handleLogout(payload []byte, ctx *dispatch.Ctx) {
	ses := ctx.Session
	ses.SetField(session.FieldAuthenticated, session.StringField("false"), true)
	ses.SetField(session.FieldUserID, session.StringField(""), true)

	d.Rooms.LeaveAll(ses.ID())

	logger.Conn(ses.ID()).InfoF("Logged out")

	ctx.Reply(map[string]interface{}{
		"sessionId": ses.ID(),
		"message":   "Successfully logged out",
	})
}
