package session

import "github.com/and161185/exam-client/internal/model"

// State is the authentication lifecycle state.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Restoring
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Restoring:
		return "restoring"
	}
	return "unknown"
}

// Snapshot is a consistent view of the session delivered to subscribers.
type Snapshot struct {
	State    State
	Token    string
	User     *model.User
	LoggedIn bool
}
