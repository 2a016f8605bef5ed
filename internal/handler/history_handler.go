/*
Package handler provides HTTP handler functions for fetching conversation history.

Missed events are not replayed over the WebSocket after a reconnect; clients
catch up through these endpoints instead.
*/
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatflow/internal/app/message"
	"chatflow/internal/pkg/auth/jwt"
	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/resp"
)

const (
	// DefaultHistoryLimit is the page size when the client does not specify one.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps the page size a client may request.
	MaxHistoryLimit = 200
)

// HandleRoomHistory returns a page of a room's messages in ascending sequence
// order. Pagination walks backwards: pass the lowest seq of the previous page
// as "before" to fetch the older page.
func HandleRoomHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID := chi.URLParam(r, "roomID")

		if _, customErr := deps.Directory.Get(roomID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !deps.Directory.IsMember(roomID, identity.ID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotAMember))
			return
		}

		beforeSeq, limit, customErr := historyPageParams(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		key := message.ConversationKey(roomID, "", "")

		messages, err := deps.History.FetchHistory(r.Context(), key, beforeSeq, limit)
		if err != nil {
			logx.Error(err, "failed to fetch room history", "room_id", roomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomId":   roomID,
			"messages": messages,
		})
	}
}

// HandleDirectHistory returns a page of the private conversation between the
// caller and another user. Both directions share one sequence, so the page is
// the merged conversation in order.
func HandleDirectHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		otherID := chi.URLParam(r, "userID")
		if otherID == "" || otherID == identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		beforeSeq, limit, customErr := historyPageParams(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		key := message.ConversationKey("", identity.ID, otherID)

		messages, err := deps.History.FetchHistory(r.Context(), key, beforeSeq, limit)
		if err != nil {
			logx.Error(err, "failed to fetch direct history", "user_id", identity.ID, "peer_id", otherID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"userId":   otherID,
			"messages": messages,
		})
	}
}

// historyPageParams parses the optional "before" and "limit" query parameters.
func historyPageParams(r *http.Request) (int64, int, *errs.CustomError) {
	var beforeSeq int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return 0, 0, errs.NewError(errs.ErrInvalidParams)
		}
		beforeSeq = parsed
	}

	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, errs.NewError(errs.ErrInvalidParams)
		}
		if parsed > MaxHistoryLimit {
			parsed = MaxHistoryLimit
		}
		limit = parsed
	}

	return beforeSeq, limit, nil
}
