// Package guard decides, before every route transition, whether to allow it or redirect.
package guard

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route is a navigable location with its access flags. Children inherit nothing
// implicitly: auth and guest flags are collected along the matched chain, admin is read
// from the matched route only.
type Route struct {
	Name          string
	Path          string
	RequiresAuth  bool
	RequiresGuest bool
	RequiresAdmin bool
	Children      []Route
}

// Location is a resolved path.
type Location struct {
	Path    string
	Name    string
	Pattern string
	Params  map[string]string
	// Matched lists the route records from the outermost parent to the target; empty when unknown.
	Matched []Route
}

// Target is the innermost matched record, or nil.
func (l Location) Target() *Route {
	if len(l.Matched) == 0 {
		return nil
	}
	return &l.Matched[len(l.Matched)-1]
}

// Param returns a path parameter such as {id}.
func (l Location) Param(key string) string { return l.Params[key] }

// Table resolves paths against a set of routes.
type Table struct {
	mux    *chi.Mux
	chains map[string][]Route
	byName map[string]string
}

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// NewTable compiles routes. Child paths are relative to their parent unless absolute.
func NewTable(routes []Route) *Table {
	t := &Table{
		mux:    chi.NewRouter(),
		chains: make(map[string][]Route),
		byName: make(map[string]string),
	}
	t.add("", nil, routes)
	return t
}

func (t *Table) add(prefix string, parents []Route, routes []Route) {
	for _, r := range routes {
		full := joinPath(prefix, r.Path)
		chain := append(append([]Route(nil), parents...), r)
		if _, dup := t.chains[full]; !dup {
			t.mux.Get(full, noop)
		}
		t.chains[full] = chain
		if r.Name != "" {
			t.byName[r.Name] = full
		}
		t.add(full, chain, r.Children)
	}
}

func joinPath(prefix, p string) string {
	if strings.HasPrefix(p, "/") || prefix == "" {
		return normalize(p)
	}
	return normalize(strings.TrimRight(prefix, "/") + "/" + p)
}

func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

// Resolve matches path against the table.
func (t *Table) Resolve(path string) Location {
	loc := Location{Path: normalize(path), Params: map[string]string{}}
	rctx := chi.NewRouteContext()
	if !t.mux.Match(rctx, http.MethodGet, loc.Path) {
		return loc
	}
	loc.Pattern = rctx.RoutePattern()
	loc.Matched = t.chains[loc.Pattern]
	for i, k := range rctx.URLParams.Keys {
		loc.Params[k] = rctx.URLParams.Values[i]
	}
	if tgt := loc.Target(); tgt != nil {
		loc.Name = tgt.Name
	}
	return loc
}

// PathOf returns the pattern registered under name.
func (t *Table) PathOf(name string) (string, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Paths of the two redirect targets.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// DefaultRoutes are the screens of the exam client.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "Login", Path: LoginPath, RequiresGuest: true},
		{Name: "Home", Path: HomePath, RequiresAuth: true},
		{Name: "Library", Path: "/library", RequiresAuth: true},
		{Name: "Practice", Path: "/practice", RequiresAuth: true},
		{Name: "WrongQuestions", Path: "/wrong-questions", RequiresAuth: true},
		{Name: "Exam", Path: "/exam/{id}", RequiresAuth: true},
		{Name: "WrongQuestionsExam", Path: "/exam/wrong-questions/{bankId}", RequiresAuth: true},
		{Name: "Admin", Path: "/admin", RequiresAuth: true, RequiresAdmin: true},
	}
}
