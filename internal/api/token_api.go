package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

// TokenAPI lets the parent app register and unregister its FCM device token.
// The user id comes from the authenticated context, never from the body.
type TokenAPI struct {
	Store  notify.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store notify.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger,
	}
}

type RegisterTokenRequest struct {
	Token string `json:"token"`
}

func (api *TokenAPI) RegisterFCM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.RegisterToken(ctx, userID, req.Token); err != nil {
		api.Logger.Error("failed to register token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterFCM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterTokenRequest // reused: it just holds "token"
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := api.Store.UnregisterToken(ctx, userID, req.Token); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister
		api.Logger.Warn("failed to unregister token", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
