package flow

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"openedu/client/internal/config"
	"openedu/client/internal/signal"
	"openedu/client/internal/token"
)

func newTestFlow(t *testing.T) (*Flow, *token.Store, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := token.NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	cfg := config.IdentityConfig{
		AuthURL:      "http://idp.example/auth",
		CallbackHost: "127.0.0.1",
		CallbackPort: 0,
		PopupTTL:     10 * time.Millisecond,
	}
	f := New(cfg, "test", dir, store, nil, zerolog.Nop())
	f.state = "state-1"
	f.attemptID = "attempt-1"
	return f, store, dir
}

func TestCallbackWithQueryTokens(t *testing.T) {
	f, store, dir := newTestFlow(t)
	router := f.router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/callback?state=state-1&access_token=acc&refresh_token=ref", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	creds, ok := store.Get()
	if !ok || creds.AccessToken != "acc" || creds.RefreshToken != "ref" {
		t.Fatalf("expected credentials persisted, got %+v ok=%v", creds, ok)
	}

	// Both signal paths fire; the flag path is observable here.
	content, err := signal.ReadFlag(dir)
	if err != nil || !strings.HasPrefix(content, "attempt-1:") {
		t.Fatalf("expected auth flag for attempt-1, got %q err=%v", content, err)
	}
}

func TestCallbackWithoutTokensServesRelayPage(t *testing.T) {
	f, store, _ := newTestFlow(t)
	router := f.router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/callback?state=state-1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/callback/complete") {
		t.Fatal("expected the fragment relay page")
	}
	if _, ok := store.Get(); ok {
		t.Fatal("no credentials may be stored before the relay completes")
	}
}

func TestCompleteQueryWinsOverFragment(t *testing.T) {
	f, store, _ := newTestFlow(t)
	router := f.router()

	body := `{
		"query": {"state": "state-1", "access_token": "from-query"},
		"fragment": {"state": "state-1", "access_token": "from-fragment", "refresh_token": "frag-refresh"}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/callback/complete", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	creds, ok := store.Get()
	if !ok {
		t.Fatal("expected credentials persisted")
	}
	// Query wins where both carry a value; fragment fills the gaps.
	if creds.AccessToken != "from-query" {
		t.Fatalf("expected query access token, got %q", creds.AccessToken)
	}
	if creds.RefreshToken != "frag-refresh" {
		t.Fatalf("expected fragment refresh token, got %q", creds.RefreshToken)
	}
}

func TestCompleteRejectsStateMismatch(t *testing.T) {
	f, store, _ := newTestFlow(t)
	router := f.router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/callback?state=wrong&access_token=acc", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on state mismatch, got %d", w.Code)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("mismatched state must not store credentials")
	}
}

func TestSecondCompletionIsIgnored(t *testing.T) {
	f, store, _ := newTestFlow(t)
	router := f.router()

	first := httptest.NewRequest(http.MethodGet,
		"/callback?state=state-1&access_token=acc-1&refresh_token=ref-1", nil)
	router.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodGet,
		"/callback?state=state-1&access_token=acc-2&refresh_token=ref-2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, second)

	if w.Code != http.StatusOK {
		t.Fatalf("expected a friendly page on the duplicate, got %d", w.Code)
	}
	creds, _ := store.Get()
	if creds.AccessToken != "acc-1" {
		t.Fatalf("duplicate completion must not overwrite credentials, got %q", creds.AccessToken)
	}
}

func TestProviderErrorShowsTerminalPage(t *testing.T) {
	f, store, _ := newTestFlow(t)
	router := f.router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected terminal page, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Login failed") {
		t.Fatal("expected failure message")
	}
	if _, ok := store.Get(); ok {
		t.Fatal("provider error must not store credentials")
	}
}

func TestStartDetectsBlockedWindowSynchronously(t *testing.T) {
	f, _, _ := newTestFlow(t)

	// Occupy the callback port so the bind fails.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	f.cfg.CallbackPort = ln.Addr().(*net.TCPAddr).Port

	if _, err := f.Start(context.Background()); !errors.Is(err, ErrPopupBlocked) {
		t.Fatalf("expected ErrPopupBlocked, got %v", err)
	}
}

func TestBuildAuthURLAppendsParams(t *testing.T) {
	f, _, _ := newTestFlow(t)

	u := f.buildAuthURL("127.0.0.1:8975", "nonce")
	if !strings.HasPrefix(u, "http://idp.example/auth?") {
		t.Fatalf("unexpected auth url %q", u)
	}
	if !strings.Contains(u, "state=nonce") {
		t.Fatalf("expected state param in %q", u)
	}
	if !strings.Contains(u, "redirect_uri=http%3A%2F%2F127.0.0.1%3A8975%2Fcallback") {
		t.Fatalf("expected redirect_uri param in %q", u)
	}
}
