/*
Package handler provides HTTP handler functions for the room directory surface.
*/
package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"chatflow/internal/app/room"
	"chatflow/internal/app/user"
	"chatflow/internal/pkg/auth/jwt"
	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/randx"
	"chatflow/internal/pkg/req"
	"chatflow/internal/pkg/resp"
)

const (
	// MaxRoomNameLen bounds room display names.
	MaxRoomNameLen = 50

	// MaxRoomDescriptionLen bounds room descriptions.
	MaxRoomDescriptionLen = 200
)

// HandleListRooms returns the rooms visible to the caller: the public namespace
// plus any private rooms the caller belongs to.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		rooms := deps.Directory.List(identity.ID)

		items := make([]map[string]any, 0, len(rooms))
		for _, rm := range rooms {
			entry := map[string]any{
				"id":          rm.ID,
				"name":        rm.Name,
				"description": rm.Description,
				"isPrivate":   rm.IsPrivate,
				"createdAt":   rm.CreatedAt,
			}

			if members, customErr := deps.Directory.MembersOf(rm.ID); customErr == nil {
				entry["memberCount"] = len(members)
			}

			items = append(items, entry)
		}

		resp.RespondSuccess(w, r, map[string]any{"rooms": items})
	}
}

type CreateRoomInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	IsPrivate   bool     `json:"isPrivate,omitempty"`
	Members     []string `json:"members,omitempty"`
}

// HandleCreateRoom processes room creation requests. The creator always becomes
// a member; additional initial members may be listed for private rooms.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateRoomInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.Name = strings.TrimSpace(input.Name)
		if input.Name == "" || utf8.RuneCountInString(input.Name) > MaxRoomNameLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if utf8.RuneCountInString(input.Description) > MaxRoomDescriptionLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		roomID, err := randx.RoomID()
		if err != nil {
			logx.Error(err, "failed to generate room id")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		members := append([]string{identity.ID}, input.Members...)

		created, customErr := deps.Directory.Create(room.Spec{
			ID:          roomID,
			Name:        input.Name,
			Description: input.Description,
			IsPrivate:   input.IsPrivate,
			Members:     members,
		})
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		logx.Info("Room created", "room_id", created.ID, "creator_id", identity.ID, "private", created.IsPrivate)

		resp.RespondSuccess(w, r, map[string]any{
			"room": map[string]any{
				"id":          created.ID,
				"name":        created.Name,
				"description": created.Description,
				"isPrivate":   created.IsPrivate,
				"createdAt":   created.CreatedAt,
			},
		})
	}
}

// HandleGetRoom returns the room's metadata and member snapshot.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID := chi.URLParam(r, "roomID")

		rm, customErr := deps.Directory.Get(roomID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		// Private rooms are invisible to non-members.
		if rm.IsPrivate && !deps.Directory.IsMember(roomID, identity.ID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
			return
		}

		memberIDs, customErr := deps.Directory.MembersOf(roomID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		members := make([]user.User, 0, len(memberIDs))
		for _, uid := range memberIDs {
			if u, ok := deps.Registry.UserByID(uid); ok {
				members = append(members, u)
			} else {
				members = append(members, user.User{ID: uid})
			}
		}

		resp.RespondSuccess(w, r, map[string]any{
			"room": map[string]any{
				"id":          rm.ID,
				"name":        rm.Name,
				"description": rm.Description,
				"isPrivate":   rm.IsPrivate,
				"createdAt":   rm.CreatedAt,
			},
			"members": members,
			"online":  deps.Presence.CurrentOnline(rm.ID),
		})
	}
}

type InviteMemberInput struct {
	UserID string `json:"userId"`
}

// HandleInviteMember adds another user to a room on behalf of the caller.
// Private rooms require the caller to already be a member.
func HandleInviteMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID := chi.URLParam(r, "roomID")

		var input InviteMemberInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.UserID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := deps.Directory.Join(roomID, identity.ID, input.UserID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomId": roomID,
			"userId": input.UserID,
		})
	}
}
