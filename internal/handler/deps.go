package handler

import (
	"chatflow/internal/app/db"
	"chatflow/internal/app/message"
	"chatflow/internal/app/presence"
	"chatflow/internal/app/room"
	"chatflow/internal/app/session"
	"chatflow/internal/app/storage"
	"chatflow/internal/app/transport"
	"chatflow/internal/configs"
)

type AppDeps struct {
	Config    *configs.AppConfig
	Registry  *session.Registry
	Directory *room.Directory
	Router    *message.Router
	Presence  *presence.Broadcaster
	Hub       *transport.Hub
	Users     *db.UserStore
	History   message.Store
	Storage   storage.Service
}
