package guard

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/model"
	"github.com/and161185/exam-client/internal/notify"
)

// Session is what the guard needs from the session store.
type Session interface {
	HasPendingRestore() bool
	Restore(ctx context.Context) error
	Logout()
	IsLoggedIn() bool
	User() *model.User
}

// Reason explains a decision.
type Reason string

const (
	Allowed          Reason = "allowed"
	NeedsLogin       Reason = "login required"
	AlreadyLoggedIn  Reason = "already logged in"
	NotAdministrator Reason = "insufficient privilege"
)

// PrivilegeMessage is shown when a non-admin opens an admin route.
const PrivilegeMessage = "insufficient privilege: administrator access required"

// Decision is the outcome of a guard run: allow, or redirect to Redirect.
type Decision struct {
	Allow    bool
	Redirect string
	Reason   Reason
}

func allow() Decision { return Decision{Allow: true, Reason: Allowed} }

func redirect(to string, why Reason) Decision { return Decision{Redirect: to, Reason: why} }

// MaxRedirects bounds a redirect chain followed by Navigate.
const MaxRedirects = 5

// Guard runs before every route transition.
type Guard struct {
	table    *Table
	session  Session
	notifier notify.Notifier
	log      *zap.Logger

	mu      sync.Mutex
	current Location
}

// New builds a guard over table. A nil notifier drops messages.
func New(table *Table, s Session, n notify.Notifier, log *zap.Logger) *Guard {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{table: table, session: s, notifier: n, log: log}
}

// Table returns the route table.
func (g *Guard) Table() *Table { return g.table }

// Before decides the transition from -> to.
func (g *Guard) Before(ctx context.Context, to, from Location) Decision {
	if g.session.HasPendingRestore() {
		if err := g.session.Restore(ctx); err != nil {
			g.log.Debug("restore before navigation failed", zap.String("to", to.Path), zap.Error(err))
			g.session.Logout()
		}
	}

	var requiresAuth, requiresGuest, requiresAdmin bool
	for _, r := range to.Matched {
		requiresAuth = requiresAuth || r.RequiresAuth
		requiresGuest = requiresGuest || r.RequiresGuest
	}
	if tgt := to.Target(); tgt != nil {
		requiresAdmin = tgt.RequiresAdmin
	}

	loggedIn := g.session.IsLoggedIn()
	switch {
	case requiresAuth && !loggedIn:
		return redirect(LoginPath, NeedsLogin)
	case requiresGuest && loggedIn:
		return redirect(HomePath, AlreadyLoggedIn)
	case requiresAdmin && !isAdmin(g.session.User()):
		g.notifier.Error(PrivilegeMessage)
		return redirect(HomePath, NotAdministrator)
	}
	return allow()
}

func isAdmin(u *model.User) bool { return u != nil && u.IsAdmin }

// Current is the last location navigation settled on.
func (g *Guard) Current() Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Navigate resolves path, runs the guard and follows redirects. It returns the location
// finally reached and the decisions taken on the way.
func (g *Guard) Navigate(ctx context.Context, path string) (Location, []Decision, error) {
	from := g.Current()
	to := g.table.Resolve(path)

	var trail []Decision
	for i := 0; ; i++ {
		d := g.Before(ctx, to, from)
		trail = append(trail, d)
		if d.Allow {
			break
		}
		if i >= MaxRedirects {
			return from, trail, fmt.Errorf("navigate %s: too many redirects", path)
		}
		g.log.Debug("redirect", zap.String("from", to.Path), zap.String("to", d.Redirect), zap.String("reason", string(d.Reason)))
		to = g.table.Resolve(d.Redirect)
	}

	g.mu.Lock()
	g.current = to
	g.mu.Unlock()
	return to, trail, nil
}
