// Package session owns the authenticated identity and the credential lifecycle.
//
// A Store is the single source of truth for "who is logged in". The persisted
// credential is written only here; the gateway reads it independently on every call.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/exam-client/internal/credstore"
	"github.com/and161185/exam-client/internal/errs"
	"github.com/and161185/exam-client/internal/limiter"
	"github.com/and161185/exam-client/internal/model"
	"github.com/and161185/exam-client/internal/notify"
)

// Gateway is the subset of the backend API used by the session.
type Gateway interface {
	Register(ctx context.Context, in model.Registration) (*model.AuthResponse, error)
	Login(ctx context.Context, in model.Credentials) (*model.AuthResponse, error)
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Store holds token, user and state. Safe for concurrent use.
type Store struct {
	gw       Gateway
	creds    credstore.Store
	notifier notify.Notifier
	limiter  limiter.Limiter
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time

	mu    sync.RWMutex
	token string
	user  *model.User
	state State

	restoreGroup singleflight.Group

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets where success and error messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLimiter replaces the login throttle.
func WithLimiter(l limiter.Limiter) Option {
	return func(s *Store) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a store and hydrates the token (never the user) from creds.
func New(gw Gateway, creds credstore.Store, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		creds:    creds,
		notifier: notify.Nop{},
		limiter:  limiter.NewDefault(),
		validate: validator.New(),
		log:      zap.NewNop(),
		now:      time.Now,
		subs:     make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	if tok, err := creds.Load(); err == nil {
		s.token = tok
	}
	return s
}

// Token returns the in-memory credential ("" when none).
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the current identity or nil.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated mirrors the Authenticated state.
func (s *Store) IsAuthenticated() bool { return s.State() == Authenticated }

// IsLoggedIn is true only when both token and user are present.
func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

// IsAdmin reports whether the current user has the administrator flag.
func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.IsAdmin
}

// HasPendingRestore reports a token, in memory or persisted, without a loaded user.
func (s *Store) HasPendingRestore() bool {
	s.mu.RLock()
	tok, user := s.token, s.user
	s.mu.RUnlock()
	if user != nil {
		return false
	}
	if tok != "" {
		return true
	}
	stored, err := s.creds.Load()
	return err == nil && stored != ""
}

// Snapshot returns a consistent copy of the session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		State:    s.state,
		Token:    s.token,
		User:     s.user,
		LoggedIn: s.token != "" && s.user != nil,
	}
}

// Subscribe registers fn for every state change and returns a function that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit() {
	snap := s.Snapshot()
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.emit()
}

// Register creates an account and signs in with it.
func (s *Store) Register(ctx context.Context, in model.Registration) (*model.AuthResponse, error) {
	if err := s.check(in); err != nil {
		s.notifier.Error(err.Error())
		return nil, err
	}
	return s.authenticate(ctx, "registered", func(ctx context.Context) (*model.AuthResponse, error) {
		return s.gw.Register(ctx, in)
	})
}

// Login signs in. Repeated failures for one username are throttled locally.
func (s *Store) Login(ctx context.Context, in model.Credentials) (*model.AuthResponse, error) {
	if err := s.check(in); err != nil {
		s.notifier.Error(err.Error())
		return nil, err
	}
	if ok, retry, err := s.limiter.Allow(ctx, in.Username, nil); err == nil && !ok {
		err := fmt.Errorf("%w: try again in %s", errs.ErrRateLimited, retry.Round(time.Second))
		s.notifier.Error(err.Error())
		return nil, err
	}

	resp, err := s.authenticate(ctx, "logged in", func(ctx context.Context) (*model.AuthResponse, error) {
		return s.gw.Login(ctx, in)
	})
	if err != nil {
		var reqErr *errs.RequestError
		if errors.As(err, &reqErr) {
			if blocked, _, lerr := s.limiter.Failure(ctx, in.Username, nil); lerr == nil && blocked {
				s.log.Warn("login blocked", zap.String("username", in.Username))
			}
		}
		return nil, err
	}
	_ = s.limiter.Success(ctx, in.Username, nil)
	return resp, nil
}

func (s *Store) authenticate(ctx context.Context, done string, call func(context.Context) (*model.AuthResponse, error)) (*model.AuthResponse, error) {
	s.mu.Lock()
	prev := s.state
	s.state = Authenticating
	s.mu.Unlock()
	s.emit()

	resp, err := call(ctx)
	if err == nil && (resp == nil || resp.Token == "" || resp.User == nil) {
		err = errors.New("authentication response carries no credential")
	}
	if err == nil {
		s.mu.Lock()
		if err = s.creds.Save(resp.Token); err == nil {
			s.token = resp.Token
			s.user = resp.User
			s.state = Authenticated
		}
		s.mu.Unlock()
	}
	if err != nil {
		if prev == Authenticating || prev == Restoring {
			prev = Anonymous
		}
		s.setState(prev)
		s.notifier.Error(errs.Message(err))
		return nil, err
	}
	s.emit()

	s.log.Info(done, zap.String("user", resp.User.Username))
	s.notifier.Success(done)
	return resp, nil
}

// Restore loads the identity behind a persisted token. Concurrent calls share one request.
// Any failure tears the session down.
func (s *Store) Restore(ctx context.Context) error {
	_, err, _ := s.restoreGroup.Do("restore", func() (any, error) {
		return nil, s.restore(ctx)
	})
	return err
}

func (s *Store) restore(ctx context.Context) error {
	s.mu.Lock()
	if s.token == "" {
		if tok, err := s.creds.Load(); err == nil {
			s.token = tok
		}
	}
	tok := s.token
	switch {
	case tok == "":
		s.mu.Unlock()
		return errs.ErrNoCredential
	case s.user != nil:
		s.mu.Unlock()
		return nil
	}
	if credstore.Expired(tok, s.now()) {
		s.mu.Unlock()
		s.teardown()
		return fmt.Errorf("%w: token expired", errs.ErrNoCredential)
	}
	s.state = Restoring
	s.mu.Unlock()
	s.emit()

	user, err := s.gw.CurrentUser(ctx)
	if err == nil && user == nil {
		err = errs.ErrUnauthorized
	}
	if err != nil {
		s.log.Info("restore failed", zap.Error(err))
		// a login that landed meanwhile keeps its session
		s.teardownIf(func(cur string) bool { return cur == tok })
		return err
	}

	s.mu.Lock()
	if s.token != tok {
		// logged out or replaced while the request was in flight
		s.mu.Unlock()
		return errs.ErrNoCredential
	}
	s.user = user
	s.state = Authenticated
	s.mu.Unlock()
	s.emit()
	return nil
}

// Init restores the session when a persisted token exists. Failures are logged out silently.
func (s *Store) Init(ctx context.Context) {
	if s.HasPendingRestore() {
		_ = s.Restore(ctx)
	}
}

// Logout clears token and user in memory and in storage. Safe in any state.
func (s *Store) Logout() {
	if s.teardown() {
		s.notifier.Success("logged out")
	}
}

// teardown reports whether anything was cleared.
func (s *Store) teardown() bool {
	return s.teardownIf(func(string) bool { return true })
}

// teardownIf clears the session only when match accepts the current token.
func (s *Store) teardownIf(match func(token string) bool) bool {
	s.mu.Lock()
	if !match(s.token) {
		s.mu.Unlock()
		return false
	}
	had := s.token != "" || s.user != nil
	s.token = ""
	s.user = nil
	s.state = Anonymous
	if err := s.creds.Clear(); err != nil {
		s.log.Warn("clear credential", zap.Error(err))
	}
	s.mu.Unlock()

	s.emit()
	return had
}

func (s *Store) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" "+describe(fe.Tag()))
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(parts, ", "))
}

func describe(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	}
	return "is invalid (" + tag + ")"
}
