package game

// Wire error kinds shared by the engine and the HTTP gateway.
const (
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrInvalidAPIKey   = "INVALID_API_KEY"
	ErrRateLimited     = "RATE_LIMITED"
	ErrNoMatch         = "NO_MATCH"
	ErrMatchInProgress = "MATCH_IN_PROGRESS"
	ErrMatchNotActive  = "MATCH_NOT_ACTIVE"
	ErrLobbyFull       = "LOBBY_FULL"
	ErrNotInMatch      = "NOT_IN_MATCH"
	ErrDead            = "DEAD"
	ErrEliminated      = "ELIMINATED"
	ErrInvalidAction   = "INVALID_ACTION"
	ErrJoinFailed      = "JOIN_FAILED"
	ErrInternal        = "INTERNAL_ERROR"
)

// Rejection is a rule-level refusal carrying its wire error kind.
type Rejection struct {
	Kind    string
	Message string
}

func (r *Rejection) Error() string {
	return r.Kind + ": " + r.Message
}

func reject(kind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}
