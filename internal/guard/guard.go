package guard

import (
	"strings"
	"sync"

	"openedu/client/internal/config"
	"openedu/client/internal/models"
)

type VerdictKind string

const (
	VerdictAllow    VerdictKind = "allow"
	VerdictWait     VerdictKind = "wait"
	VerdictRedirect VerdictKind = "redirect"
)

type Verdict struct {
	Kind VerdictKind
	Path string
}

// SessionState is the injected session context the guard decides on. No
// ambient globals: the caller assembles it from the resolver and token
// store on every navigation.
type SessionState struct {
	User           *models.UserRecord
	Loading        bool
	HasCredentials bool
}

// Guard enforces that protected routes are unreachable without a resolved
// session. The very first evaluation after construction never redirects,
// so an initial page load on a protected route gets one cycle for the
// profile fetch to land.
type Guard struct {
	routes config.RoutesConfig
	public map[string]bool

	mu        sync.Mutex
	evaluated bool
}

func New(routes config.RoutesConfig) *Guard {
	public := map[string]bool{
		routes.Landing: true,
		routes.Login:   true,
		"/signup":      true,
		"/about":       true,
	}
	return &Guard{routes: routes, public: public}
}

func (g *Guard) Check(path string, state SessionState) Verdict {
	g.mu.Lock()
	first := !g.evaluated
	g.evaluated = true
	g.mu.Unlock()

	if g.publicPath(path) {
		return Verdict{Kind: VerdictAllow}
	}

	if state.Loading {
		return Verdict{Kind: VerdictWait}
	}

	if state.User != nil || state.HasCredentials {
		return Verdict{Kind: VerdictAllow}
	}

	if first {
		// Grace pass: the initial fetch may not have settled yet.
		return Verdict{Kind: VerdictAllow}
	}

	return Verdict{Kind: VerdictRedirect, Path: g.routes.Landing}
}

func (g *Guard) publicPath(path string) bool {
	if g.public[path] {
		return true
	}
	if strings.HasPrefix(path, "/auth/callback") {
		return true
	}
	// Content routes are public except the generation sub-path.
	if strings.HasPrefix(path, g.routes.ContentPrefix) &&
		!strings.HasPrefix(path, g.routes.GenerationPrefix) {
		return true
	}
	return false
}
