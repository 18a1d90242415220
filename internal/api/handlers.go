package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"shooter-arena/internal/game"
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

// handleStatus reports the lifecycle state. Public, no auth.
func (h *routerHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Status())
}

// joinBody is the optional POST /join payload; every field may be absent
type joinBody struct {
	DisplayName string `json:"displayName"`
	StrategyTag string `json:"strategyTag"`
	CharacterID string `json:"characterId"`
}

// joinResponse decorates the engine result with the success envelope
type joinResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	game.JoinResult
}

func (h *routerHandlers) handleJoin(w http.ResponseWriter, r *http.Request) {
	agent, _ := AgentFromContext(r.Context())
	token := TokenFromContext(r.Context())

	var body joinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, game.ErrJoinFailed, "malformed JSON body", 0)
		return
	}

	// The registered agent name wins over the request's displayName:
	// settlement resolution matches winners by registered name, so a
	// joined player must carry it whenever the identity service knows one.
	name := agent.Name
	if name == "" {
		name = body.DisplayName
	}
	if name == "" {
		writeError(w, game.ErrJoinFailed, "no agent name; register one or send displayName", 0)
		return
	}

	res, err := h.engine.Join(game.JoinRequest{
		APIKey:      token,
		AgentName:   name,
		StrategyTag: body.StrategyTag,
		CharacterID: body.CharacterID,
		Wallet:      agent.Wallet,
	})
	if err != nil {
		writeRejection(w, err)
		return
	}

	writeJSON(w, joinResponse{
		Success:    true,
		Message:    "joined " + res.MatchID + " as " + name,
		JoinResult: res,
	})
}

func (h *routerHandlers) handleState(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())

	playerID, ok := h.engine.LookupPlayer(token)
	if !ok {
		writeError(w, game.ErrNotInMatch, "join the match first", 0)
		return
	}

	view, err := h.engine.StateFor(playerID)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, view)
}

// actionBody uses pointers so absent fields are distinguishable from
// zero values; 0 degrees is a legal angle.
type actionBody struct {
	Action   string   `json:"action"`
	Angle    *float64 `json:"angle"`
	AimAngle *float64 `json:"aimAngle"`
	Move     *bool    `json:"move"`
}

func (h *routerHandlers) handleAction(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())

	playerID, ok := h.engine.LookupPlayer(token)
	if !ok {
		RecordActionRejected(game.ErrNotInMatch)
		writeError(w, game.ErrNotInMatch, "join the match first", 0)
		return
	}

	if allowed, retryMs := h.limiter.Allow(token); !allowed {
		RecordActionRejected(game.ErrRateLimited)
		w.Header().Set("Retry-After", "1")
		writeError(w, game.ErrRateLimited, "action budget exhausted", retryMs)
		return
	}

	var body actionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RecordActionRejected(game.ErrInvalidAction)
		writeError(w, game.ErrInvalidAction, "malformed JSON body", 0)
		return
	}

	kind, ok := game.ParseActionKind(body.Action)
	if !ok {
		RecordActionRejected(game.ErrInvalidAction)
		writeError(w, game.ErrInvalidAction, "unknown action \""+body.Action+"\"", 0)
		return
	}

	action := game.Action{PlayerID: playerID, Kind: kind}
	switch kind {
	case game.ActionMove:
		if body.Angle == nil {
			RecordActionRejected(game.ErrInvalidAction)
			writeError(w, game.ErrInvalidAction, "move requires an angle", 0)
			return
		}
		action.Angle = game.WireAngleToRad(*body.Angle)
	case game.ActionShoot:
		// aimAngle is the documented field; a plain angle works too.
		aim := body.AimAngle
		if aim == nil {
			aim = body.Angle
		}
		if aim == nil {
			RecordActionRejected(game.ErrInvalidAction)
			writeError(w, game.ErrInvalidAction, "shoot requires an aimAngle", 0)
			return
		}
		action.Angle = game.WireAngleToRad(*aim)
	}
	if body.Move != nil {
		action.HasMoveHint = true
		action.MoveHint = *body.Move
	}

	if err := h.engine.SubmitAction(action); err != nil {
		RecordActionRejected(rejectionKind(err))
		writeRejection(w, err)
		return
	}

	RecordAction(kind.String())
	writeJSON(w, map[string]bool{"success": true})
}

// handleSpectator serves the shared snapshot without any per-agent
// fields. Public, no auth.
func (h *routerHandlers) handleSpectator(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.SpectatorState()
	if snap == nil {
		writeError(w, game.ErrNoMatch, "no match state published yet", 0)
		return
	}
	writeJSON(w, snap)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Helper functions (package-level for reuse)

// errorBody is the flat envelope every failed request gets
type errorBody struct {
	Success      bool   `json:"success"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// statusForKind maps wire error kinds onto HTTP status codes
func statusForKind(kind string) int {
	switch kind {
	case game.ErrUnauthorized, game.ErrInvalidAPIKey:
		return http.StatusUnauthorized
	case game.ErrRateLimited:
		return http.StatusTooManyRequests
	case game.ErrNoMatch:
		return http.StatusNotFound
	case game.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, kind, message string, retryAfterMs int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	json.NewEncoder(w).Encode(errorBody{
		Error:        kind,
		Message:      message,
		RetryAfterMs: retryAfterMs,
	})
}

// writeRejection translates an engine refusal into the wire envelope
func writeRejection(w http.ResponseWriter, err error) {
	var rej *game.Rejection
	if errors.As(err, &rej) {
		writeError(w, rej.Kind, rej.Message, 0)
		return
	}
	writeError(w, game.ErrInternal, "internal error", 0)
}

// rejectionKind extracts the wire kind for metrics labels
func rejectionKind(err error) string {
	var rej *game.Rejection
	if errors.As(err, &rej) {
		return rej.Kind
	}
	return game.ErrInternal
}
