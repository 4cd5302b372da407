package facebook

import (
	"context"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// LoopbackAuthorizer receives the OAuth redirect on a local HTTP listener
// bound to the redirect URL's host and port.
type LoopbackAuthorizer struct {
	redirect *url.URL
	open     func(string) error
	out      io.Writer
	timeout  time.Duration
}

type LoopbackOption func(*LoopbackAuthorizer)

// WithOpener replaces the browser launcher.
func WithOpener(open func(string) error) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.open = open
	}
}

// WithURLOutput prints the dialog URL to w, so the user can open it by hand.
func WithURLOutput(w io.Writer) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.out = w
	}
}

// WithCallbackTimeout bounds how long Authorize waits for the redirect.
func WithCallbackTimeout(d time.Duration) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.timeout = d
	}
}

func NewLoopbackAuthorizer(redirectURL string, options ...LoopbackOption) (*LoopbackAuthorizer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewLoopbackAuthorizer] redirect url")
	}
	if u.Scheme != "http" || u.Port() == "" {
		return nil, errors.Errorf("[NewLoopbackAuthorizer] redirect url must be http://host:port/path, got %q", redirectURL)
	}
	a := &LoopbackAuthorizer{
		redirect: u,
		open:     OpenBrowser,
		timeout:  5 * time.Minute,
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

type callbackResult struct {
	code string
	err  error
}

func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL, state string) (string, error) {
	listener, err := net.Listen("tcp", a.redirect.Host)
	if err != nil {
		return "", errors.Wrapf(err, "[LoopbackAuthorizer.Authorize] listen on %s", a.redirect.Host)
	}

	results := make(chan callbackResult, 1)
	path := a.redirect.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		res := parseCallback(r.URL.Query(), state)
		select {
		case results <- res:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.err != nil {
			fmt.Fprint(w, callbackPage("Login failed", html.EscapeString(res.err.Error())))
			return
		}
		fmt.Fprint(w, callbackPage("Login complete", "You can close this window and return to the application."))
	})

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = server.Serve(listener)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if a.out != nil {
		fmt.Fprintf(a.out, "Open this URL to log in:\n%s\n", authURL)
	}
	if a.open != nil {
		if err := a.open(authURL); err != nil && a.out != nil {
			fmt.Fprintf(a.out, "Could not open a browser: %v\n", err)
		}
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrAuthorizationCancelled
		}
		return "", errors.Wrap(ctx.Err(), "[LoopbackAuthorizer.Authorize] waiting for callback")
	case <-timer.C:
		return "", errors.Wrap(context.DeadlineExceeded, "[LoopbackAuthorizer.Authorize] timed out waiting for callback")
	}
}

func parseCallback(q url.Values, expectedState string) callbackResult {
	if code := q.Get("error"); code != "" {
		return callbackResult{err: &AuthorizationError{
			Code:        code,
			Reason:      q.Get("error_reason"),
			Description: q.Get("error_description"),
		}}
	}
	if q.Get("state") != expectedState {
		return callbackResult{err: errors.New("state mismatch in authorization callback")}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("no authorization code received")}
	}
	return callbackResult{code: code}
}

func callbackPage(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, title, message)
}
