package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-social-session/failure"
	"github.com/jrsteele09/go-social-session/identity"
	"github.com/jrsteele09/go-social-session/metrics"
	"github.com/jrsteele09/go-social-session/session"
)

func newLoginCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with Facebook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, factory, func(a *app) error {
				out := cmd.OutOrStdout()
				if user := a.manager.CurrentUser(); user != nil && !force {
					fmt.Fprintf(out, "Already logged in as %s\n", describeUser(user))
					return nil
				}
				if !opts.jsonOutput {
					displayAppname(out, a.appName)
				}

				res := a.manager.Login(cmd.Context())
				switch res.Outcome {
				case session.OutcomeSuccess:
					if opts.jsonOutput {
						return writeJSON(out, res.User)
					}
					fmt.Fprintf(out, "Logged in as %s\n", describeUser(res.User))
					return nil
				case session.OutcomeCancelled:
					fmt.Fprintln(out, failure.Message(res.Err))
					return nil
				}
				a.logger.Debug().Err(res.Err).Msg("login failed")
				return errors.New(userMessage(res.Message, res.Err))
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Log in again even when a session exists")
	return cmd
}

func newLogoutCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and wipe the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, factory, func(a *app) error {
				err := a.manager.Logout(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				if err != nil {
					a.logger.Debug().Err(err).Msg("logout incomplete")
					return errors.Errorf("local session cleared, but: %s", failure.Message(err))
				}
				return nil
			})
		},
	}
}

type statusView struct {
	State string         `json:"state"`
	User  *identity.User `json:"user,omitempty"`
}

func newStatusCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, factory, func(a *app) error {
				view := statusView{State: a.manager.State().String(), User: a.manager.CurrentUser()}
				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return writeJSON(out, view)
				}
				if view.User == nil {
					fmt.Fprintln(out, "Not logged in")
					return nil
				}
				fmt.Fprintf(out, "Logged in as %s\n", describeUser(view.User))
				return nil
			})
		},
	}
}

func newRefreshCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	var (
		watch       time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token if it has expired",
		Long: `refresh swaps an expired access token for a new one and stores it.

With --watch it keeps checking at the given interval until interrupted,
optionally serving Prometheus metrics on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, factory, func(a *app) error {
				if a.manager.State() != session.StateLoggedIn {
					return errors.New(failure.Message(session.ErrNotLoggedIn))
				}
				out := cmd.OutOrStdout()
				if watch <= 0 {
					reportRefresh(out, a.manager.RefreshTokenIfNeeded(cmd.Context()))
					return nil
				}
				if metricsAddr != "" {
					stop, err := serveMetrics(a, metricsAddr)
					if err != nil {
						return err
					}
					defer stop()
				}
				return watchRefresh(cmd.Context(), a, out, watch)
			})
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "Keep refreshing at this interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address while watching")
	return cmd
}

func reportRefresh(out io.Writer, refreshed bool) {
	if refreshed {
		fmt.Fprintln(out, "Access token refreshed")
		return
	}
	fmt.Fprintln(out, "No refresh needed")
}

func watchRefresh(ctx context.Context, a *app, out io.Writer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if a.manager.RefreshTokenIfNeeded(ctx) {
			fmt.Fprintf(out, "%s access token refreshed\n", time.Now().Format(time.RFC3339))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func serveMetrics(a *app, addr string) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	server := &http.Server{Handler: metrics.Handler(a.registry), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", listener.Addr().String()).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func describeUser(u *identity.User) string {
	if u.Email == "" {
		return fmt.Sprintf("%s (%s)", u.DisplayName, u.ID)
	}
	return fmt.Sprintf("%s <%s> (%s)", u.DisplayName, u.Email, u.ID)
}

// userMessage prefers the category message over a raw provider message.
func userMessage(fallback string, err error) string {
	if failure.Classify(err) != failure.CategoryUnknown || fallback == "" {
		return failure.Message(err)
	}
	return fallback
}
