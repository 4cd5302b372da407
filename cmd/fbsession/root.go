package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel   string
	store      string
	envFile    string
	jsonOutput bool
}

func newRootCmd(factory appFactory) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "fbsession",
		Short: "Facebook login sessions and profile management",
		Long: `fbsession logs in with Facebook, keeps the session in an encrypted local
store and manages the matching profile on the backend API.

Environment Variables:
  FB_APP_ID, FB_APP_SECRET   Facebook app credentials (required)
  FB_REDIRECT_URL            Loopback redirect (default: http://localhost:8765/callback)
  API_BASE_URL               Profile API (default: http://localhost:3000/api/users)
  STORE_BACKEND              file or sqlite (default: file)
  STORE_PASSPHRASE           Encrypts the credential store (required)
  DATA_FOLDER                Where credentials live (default: ~/.fbsession)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "Credential store backend: file or sqlite (overrides STORE_BACKEND)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment from this file")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output JSON instead of human-readable text")

	root.AddCommand(
		newLoginCmd(opts, factory),
		newLogoutCmd(opts, factory),
		newStatusCmd(opts, factory),
		newRefreshCmd(opts, factory),
		newProfileCmd(opts, factory),
	)
	return root
}

// withApp builds the app, restores the session and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, factory appFactory, fn func(a *app) error) (err error) {
	a, err := factory(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err := a.start(cmd.Context()); err != nil {
		return err
	}
	return fn(a)
}
