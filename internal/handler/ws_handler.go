/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
authenticating the connecting user, upgrading the HTTP connection to WebSocket, and
handing the connection to the session registry and transport hub.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"chatflow/internal/app/transport"
	"chatflow/internal/app/user"
	"chatflow/internal/pkg/auth/jwt"
	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/limiter"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The identity token arrives as a query parameter because browsers cannot set an
// Authorization header on WebSocket upgrade requests.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			logx.Warn("WebSocket request rejected: Missing token query parameter")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		payload, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket request rejected: Invalid token", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		currentUser := user.User{
			ID:       payload.ID,
			Username: payload.Username,
		}

		if rec, err := deps.Users.GetUserByID(r.Context(), payload.ID); err == nil {
			currentUser.Username = rec.Username
			currentUser.AvatarRef = rec.AvatarRef
		}

		logx.Info("Attempting to upgrade connection", "user_id", currentUser.ID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := transport.NewClient(deps.Hub, conn, currentUser)

		sessionID, customErr := deps.Registry.Register(currentUser, client)
		if customErr != nil {
			logx.Warn("WebSocket registration rejected", "user_id", currentUser.ID, "error", customErr.Message)
			client.Close(customErr.Message)

			if err := conn.Close(); err != nil {
				logx.Error(err, "Failed to close rejected connection")
			}
			return
		}

		client.SetSession(sessionID)
		deps.Hub.Attach(client)

		go client.WritePump()

		logx.Info("WebSocket connection established and session registered",
			"user_id", currentUser.ID, "session_id", sessionID)

		client.ReadPump()
	}
}
