// Package api contains the HTTP entry points: the two notification dispatch
// functions and the device token registration endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

// User-facing strings are fixed by the admin panel, which parses them.
const (
	msgNoGuardians = "No hay tutores a quienes notificar."
	msgNoTokens    = "No se encontraron tokens para los tutores."
)

type DispatchAPI struct {
	resolver    notify.Resolver
	tokens      notify.TokenStore
	credentials notify.AccessTokenSource
	dispatcher  notify.Dispatcher
	logger      *slog.Logger
}

func NewDispatchAPI(
	resolver notify.Resolver,
	tokens notify.TokenStore,
	credentials notify.AccessTokenSource,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
) *DispatchAPI {
	return &DispatchAPI{
		resolver:    resolver,
		tokens:      tokens,
		credentials: credentials,
		dispatcher:  dispatcher,
		logger:      logger.With("component", "DispatchAPI"),
	}
}

// --- Single recipient: POST /send-notification ---

type SendRequest struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func (a *DispatchAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing userId")
		return
	}

	deviceTokens, err := a.deviceTokensFor(ctx, []string{req.UserID})
	if err != nil {
		if errors.Is(err, notify.ErrNoDeviceTokens) {
			response.WriteJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("No se encontraron tokens para el usuario: %s", req.UserID))
			return
		}
		a.logger.Error("Token lookup failed", "user_id", req.UserID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "token lookup failed")
		return
	}

	bearer, err := a.credentials.Token(ctx)
	if err != nil {
		a.logger.Error("Credential exchange failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The single-recipient path awaits every send and reports one overall
	// outcome: only a total failure surfaces as an error.
	result := a.dispatcher.Dispatch(ctx, deviceTokens, notify.Payload{Title: req.Title, Body: req.Body}, bearer)
	if result.Delivered == 0 {
		a.logger.Error("All sends failed", "dispatch_id", result.DispatchID, "user_id", req.UserID)
		response.WriteJSONError(w, http.StatusBadRequest, "failed to deliver notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Bulk: POST /send-bulk-notification ---

type BulkSendRequest struct {
	Titulo    string `json:"titulo"`
	Mensaje   string `json:"mensaje"`
	GrupoID   string `json:"grupo_id"`
	EscuelaID string `json:"escuela_id"`
}

// Audience maps the mutually exclusive selector fields onto the audience
// sum type, rejecting requests that populate zero or both.
func (r BulkSendRequest) Audience() (notify.Audience, error) {
	switch {
	case r.GrupoID != "" && r.EscuelaID != "":
		return notify.Audience{}, fmt.Errorf("grupo_id y escuela_id son excluyentes")
	case r.GrupoID != "":
		return notify.GroupAudience(r.GrupoID), nil
	case r.EscuelaID != "":
		return notify.SchoolAudience(r.EscuelaID), nil
	default:
		return notify.Audience{}, fmt.Errorf("se requiere grupo_id o escuela_id")
	}
}

func (a *DispatchAPI) SendBulkNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	aud, err := req.Audience()
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Mint the bearer concurrently with audience resolution; the two are
	// independent. The channel is buffered so an early return on an empty
	// audience doesn't strand the goroutine.
	type credential struct {
		bearer string
		err    error
	}
	credCh := make(chan credential, 1)
	go func() {
		bearer, err := a.credentials.Token(ctx)
		credCh <- credential{bearer: bearer, err: err}
	}()

	recipients, err := a.resolver.Resolve(ctx, aud)
	if err != nil {
		a.logger.Error("Audience resolution failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(recipients) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"message": msgNoGuardians})
		return
	}

	deviceTokens, err := a.deviceTokensFor(ctx, recipients)
	if err != nil {
		if errors.Is(err, notify.ErrNoDeviceTokens) {
			// Guardians exist but none has ever registered a device: a hard
			// error, unlike the empty audience above.
			response.WriteJSONError(w, http.StatusBadRequest, msgNoTokens)
			return
		}
		a.logger.Error("Token lookup failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "token lookup failed")
		return
	}

	cred := <-credCh
	if cred.err != nil {
		a.logger.Error("Credential exchange failed", "err", cred.err)
		response.WriteJSONError(w, http.StatusBadRequest, cred.err.Error())
		return
	}

	result := a.dispatcher.Dispatch(ctx, deviceTokens, notify.Payload{Title: req.Titulo, Body: req.Mensaje}, cred.bearer)
	if result.Failed() > 0 {
		// Per-token failures stay out of the bulk response body; the
		// dispatch log carries the detail.
		a.logger.Warn("Bulk dispatch had per-token failures",
			"dispatch_id", result.DispatchID, "failed", result.Failed())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Notificaciones enviadas a %d dispositivos.", result.Attempted),
	})
}

// deviceTokensFor flattens the token lookup for a recipient set. A lookup
// that succeeds but finds nothing returns ErrNoDeviceTokens so callers can
// tell the empty result apart from a storage failure.
func (a *DispatchAPI) deviceTokensFor(ctx context.Context, userIDs []string) ([]string, error) {
	tokensByUser, err := a.tokens.TokensForUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	var deviceTokens []string
	for _, userTokens := range tokensByUser {
		deviceTokens = append(deviceTokens, userTokens...)
	}
	if len(deviceTokens) == 0 {
		return nil, notify.ErrNoDeviceTokens
	}
	return deviceTokens, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
