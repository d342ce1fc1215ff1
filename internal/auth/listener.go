package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"idcloud-mcp/internal/logging"
)

// callbackResult is the outcome of one redirect delivery.
type callbackResult struct {
	code string
	err  error
}

// redirectListener is the loopback HTTP server that receives the
// authorization redirect during the interactive flow. It accepts exactly one
// authorization response: the first valid request wins and every later
// request gets 404. The listener always shuts down when the flow ends, on
// every path.
type redirectListener struct {
	tenantHost string
	state      string
	logger     *slog.Logger

	server   *http.Server
	listener net.Listener

	once    sync.Once
	results chan callbackResult

	// originMu guards originErr, the most recent cross-origin rejection.
	// Rejections never consume the one-shot slot, but they must not vanish
	// either: if the flow then times out, the rejection is attached to the
	// timeout error.
	originMu  sync.Mutex
	originErr error
}

// newRedirectListener binds a loopback listener on the given port (0 picks a
// free one) and starts serving. The returned listener's RedirectURI is what
// goes into the authorization request.
func newRedirectListener(port int, tenantHost, state string, logger *slog.Logger) (*redirectListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("binding callback listener: %w", err)
	}

	rl := &redirectListener{
		tenantHost: strings.ToLower(tenantHost),
		state:      state,
		logger:     logger,
		listener:   ln,
		results:    make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", rl.handleCallback)
	rl.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go rl.server.Serve(ln) //nolint:errcheck // Serve returns ErrServerClosed on shutdown

	return rl, nil
}

// RedirectURI returns the loopback redirect URI the listener serves.
func (rl *redirectListener) RedirectURI() string {
	return fmt.Sprintf("http://%s/callback", rl.listener.Addr().String())
}

// Wait blocks until the redirect arrives, the timeout elapses or ctx is
// cancelled, and returns the authorization code. The listener is shut down
// before Wait returns regardless of outcome.
func (rl *redirectListener) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	defer rl.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-rl.results:
		if res.err != nil {
			return "", res.err
		}
		return res.code, nil
	case <-timer.C:
		if originErr := rl.lastOriginRejection(); originErr != nil {
			return "", fmt.Errorf("%w (a cross-origin request was rejected while waiting: %w)", ErrAuthTimeout, originErr)
		}
		return "", ErrAuthTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the HTTP server down. Safe to call more than once.
func (rl *redirectListener) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rl.server.Shutdown(ctx) //nolint:errcheck
}

// deliver hands the result to the waiter exactly once. Returns false when a
// result was already delivered.
func (rl *redirectListener) deliver(res callbackResult) bool {
	delivered := false
	rl.once.Do(func() {
		rl.results <- res
		delivered = true
	})
	return delivered
}

func (rl *redirectListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := rl.checkOrigin(r); err != nil {
		// Cross-site noise aimed at the listener must not consume the
		// one-shot slot: the real redirect may still be on its way. The
		// rejection is logged and remembered so it cannot pass silently.
		rl.logger.Warn("rejected cross-origin callback request",
			slog.String("remote_addr", r.RemoteAddr),
			logging.Err(err))
		rl.originMu.Lock()
		rl.originErr = err
		rl.originMu.Unlock()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	q := r.URL.Query()

	// The state check runs before the code is even looked at, and a
	// mismatch terminates the whole attempt.
	if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(rl.state)) != 1 {
		if rl.deliver(callbackResult{err: ErrStateMismatch}) {
			http.Error(w, "state mismatch", http.StatusBadRequest)
		} else {
			http.NotFound(w, r)
		}
		return
	}

	if errCode := q.Get("error"); errCode != "" {
		err := fmt.Errorf("authorization server returned error %q: %s", errCode, q.Get("error_description"))
		if rl.deliver(callbackResult{err: err}) {
			http.Error(w, "authorization failed", http.StatusBadRequest)
		} else {
			http.NotFound(w, r)
		}
		return
	}

	code := q.Get("code")
	if code == "" {
		if rl.deliver(callbackResult{err: fmt.Errorf("redirect missing authorization code")}) {
			http.Error(w, "missing code", http.StatusBadRequest)
		} else {
			http.NotFound(w, r)
		}
		return
	}

	if !rl.deliver(callbackResult{code: code}) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>Login complete</title></head>
<body><h1>Login complete</h1><p>You can close this tab and return to the terminal.</p></body></html>`)
}

// lastOriginRejection returns the most recent cross-origin rejection, if any.
func (rl *redirectListener) lastOriginRejection() error {
	rl.originMu.Lock()
	defer rl.originMu.Unlock()
	return rl.originErr
}

// checkOrigin validates the Origin and Referer headers when present. Browsers
// do not always send them on top-level redirects, so absence is accepted;
// when a header is present its hostname must match the tenant exactly
// (case-insensitive).
func (rl *redirectListener) checkOrigin(r *http.Request) error {
	for _, header := range []string{"Origin", "Referer"} {
		v := r.Header.Get(header)
		if v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil {
			return fmt.Errorf("%w: unparseable %s header", ErrOriginRejected, header)
		}
		if !strings.EqualFold(u.Hostname(), rl.tenantHost) {
			return fmt.Errorf("%w: %s host %q does not match tenant", ErrOriginRejected, header, u.Hostname())
		}
	}
	return nil
}
