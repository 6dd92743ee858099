package flow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"openedu/client/internal/config"
	"openedu/client/internal/ids"
	"openedu/client/internal/signal"
	"openedu/client/internal/token"
)

// ErrPopupBlocked means the login window could not be opened at all: the
// callback port would not bind or the browser would not launch. Detected
// synchronously so the caller warns instead of waiting for a signal that
// will never come.
var ErrPopupBlocked = errors.New("login window blocked")

// Flow runs one identity-provider login: bind the localhost callback
// listener, open the system browser, accept the token handoff, persist
// the credentials and announce completion on both signal paths. The
// listener closes itself a fixed delay after a terminal signal whether or
// not the opener has finished processing it.
type Flow struct {
	cfg       config.IdentityConfig
	env       string
	stateDir  string
	store     *token.Store
	broadcast signal.Broadcast
	log       zerolog.Logger

	mu        sync.Mutex
	state     string
	attemptID string
	srv       *http.Server
	done      bool
}

func New(cfg config.IdentityConfig, env, stateDir string, store *token.Store, broadcast signal.Broadcast, log zerolog.Logger) *Flow {
	return &Flow{
		cfg:       cfg,
		env:       env,
		stateDir:  stateDir,
		store:     store,
		broadcast: broadcast,
		log:       log,
	}
}

// Start begins a login attempt and returns its attempt ID. Completion is
// observed through the signal listener, not through Start.
func (f *Flow) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("%s:%d", f.cfg.CallbackHost, f.cfg.CallbackPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("%w: bind %s: %v", ErrPopupBlocked, addr, err)
	}

	f.mu.Lock()
	f.state = uuid.NewString()
	f.attemptID = ids.New()
	f.done = false
	attemptID := f.attemptID
	authURL := f.buildAuthURL(addr, f.state)
	f.srv = &http.Server{Handler: f.router(), ReadTimeout: 10 * time.Second}
	srv := f.srv
	f.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error().Err(err).Msg("callback listener failed")
		}
	}()

	if err := openBrowser(authURL); err != nil {
		f.shutdown()
		return "", fmt.Errorf("%w: open browser: %v", ErrPopupBlocked, err)
	}

	f.log.Info().Str("attempt_id", attemptID).Msg("login started")
	return attemptID, nil
}

func (f *Flow) buildAuthURL(callbackAddr, state string) string {
	q := url.Values{}
	q.Set("redirect_uri", fmt.Sprintf("http://%s/callback", callbackAddr))
	q.Set("state", state)

	sep := "?"
	if u, err := url.Parse(f.cfg.AuthURL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return f.cfg.AuthURL + sep + q.Encode()
}

func (f *Flow) router() *gin.Engine {
	if f.env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/callback", f.handleCallback)
	engine.POST("/callback/complete", f.handleComplete)

	return engine
}

// handleCallback accepts tokens from query parameters. When the provider
// put them in the URL fragment instead, the server cannot see them, so a
// relay page forwards both locations to /callback/complete.
func (f *Flow) handleCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		f.log.Warn().Str("error", errParam).Msg("identity provider returned error")
		f.finishPage(c, "Login failed. You can close this window.")
		return
	}

	if c.Query("access_token") != "" {
		f.complete(c, c.Query("state"), c.Query("access_token"), c.Query("refresh_token"))
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, relayPage)
}

type completeRequest struct {
	Query    map[string]string `json:"query"`
	Fragment map[string]string `json:"fragment"`
}

func (r completeRequest) get(key string) string {
	// Query parameters win when both locations carry the value.
	if v := r.Query[key]; v != "" {
		return v
	}
	return r.Fragment[key]
}

func (f *Flow) handleComplete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f.complete(c, req.get("state"), req.get("access_token"), req.get("refresh_token"))
}

func (f *Flow) complete(c *gin.Context, state, accessToken, refreshToken string) {
	f.mu.Lock()
	expected := f.state
	attemptID := f.attemptID
	alreadyDone := f.done
	f.mu.Unlock()

	if alreadyDone {
		f.finishPage(c, "Login already completed. You can close this window.")
		return
	}
	if state == "" || state != expected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state_mismatch"})
		return
	}
	if accessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_token"})
		return
	}

	if err := f.store.Set(token.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}); err != nil {
		f.log.Error().Err(err).Msg("persist credentials failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persist_failed"})
		return
	}

	f.mu.Lock()
	f.done = true
	f.mu.Unlock()

	signal.Announce(c.Request.Context(), f.broadcast, f.stateDir, attemptID, f.log)
	f.log.Info().Str("attempt_id", attemptID).Msg("login completed")

	f.finishPage(c, "Login complete. You can close this window.")
}

// finishPage responds with a terminal page and schedules the listener's
// auto-close. The opener's finalize work runs off the signal it already
// received and must not depend on this listener staying up.
func (f *Flow) finishPage(c *gin.Context, message string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, "<html><body><p>%s</p></body></html>", message)

	time.AfterFunc(f.cfg.PopupTTL, f.shutdown)
}

func (f *Flow) shutdown() {
	f.mu.Lock()
	srv := f.srv
	f.srv = nil
	f.mu.Unlock()

	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		f.log.Warn().Err(err).Msg("callback listener shutdown failed")
	}
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}

const relayPage = `<!DOCTYPE html>
<html>
<body>
<p>Completing login...</p>
<script>
(function () {
  function parse(raw) {
    var out = {};
    new URLSearchParams(raw).forEach(function (value, key) { out[key] = value; });
    return out;
  }
  var body = {
    query: parse(window.location.search),
    fragment: parse(window.location.hash.replace(/^#/, ""))
  };
  fetch("/callback/complete", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify(body)
  }).then(function () {
    document.body.innerHTML = "<p>Login complete. You can close this window.</p>";
  }).catch(function () {
    document.body.innerHTML = "<p>Login failed. Please retry.</p>";
  });
})();
</script>
</body>
</html>`
