package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-social-session/credentials"
	"github.com/jrsteele09/go-social-session/credentials/filestore"
	"github.com/jrsteele09/go-social-session/credentials/sqlitestore"
	"github.com/jrsteele09/go-social-session/internal/config"
	apperrors "github.com/jrsteele09/go-social-session/internal/errors"
	"github.com/jrsteele09/go-social-session/internal/logging"
	"github.com/jrsteele09/go-social-session/metrics"
	"github.com/jrsteele09/go-social-session/profile"
	"github.com/jrsteele09/go-social-session/provider"
	"github.com/jrsteele09/go-social-session/provider/facebook"
	"github.com/jrsteele09/go-social-session/session"
)

// app is everything a command needs, wired once per invocation.
type app struct {
	appName  string
	logger   zerolog.Logger
	manager  *session.Manager
	profile  *profile.Client
	registry *prometheus.Registry
	closers  []func() error
}

// appFactory builds the app for a command; tests swap in fakes.
type appFactory func(ctx context.Context, opts *rootOptions, errOut io.Writer) (*app, error)

func newApp(ctx context.Context, opts *rootOptions, errOut io.Writer) (*app, error) {
	cfg := config.New()
	if opts.envFile != "" {
		var err error
		if cfg, err = config.NewFromFile(opts.envFile); err != nil {
			return nil, errors.Wrapf(err, "loading %s", opts.envFile)
		}
	}

	level := cfg.GetLogLevel()
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := logging.New(level, cfg.GetEnv(), errOut)

	backend := cfg.GetStoreBackend()
	if opts.store != "" {
		backend = opts.store
	}
	passphrase := cfg.GetStorePassphrase()
	if passphrase == "" {
		passphrase = promptPassphrase(errOut)
	}
	store, closeStore, err := openStore(ctx, backend, cfg.GetDataFolder(), passphrase)
	if err != nil {
		return nil, err
	}

	authorizer, err := facebook.NewLoopbackAuthorizer(cfg.GetFacebookRedirectURL(), facebook.WithURLOutput(errOut))
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	fb, err := facebook.New(facebook.Config{
		AppID:       cfg.GetFacebookAppID(),
		AppSecret:   cfg.GetFacebookAppSecret(),
		RedirectURL: cfg.GetFacebookRedirectURL(),
		GraphURL:    cfg.GetFacebookGraphURL(),
		OpenID:      cfg.GetFacebookOpenID(),
	}, authorizer)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	a, err := assembleApp(appDeps{
		appName:     cfg.GetAppName(),
		logger:      logger,
		provider:    fb,
		store:       store,
		apiBaseURL:  cfg.GetAPIBaseURL(),
		permissions: cfg.GetFacebookPermissions(),
		userFields:  cfg.GetFacebookUserFields(),
		profileOpts: []profile.ClientOption{profile.WithTimeout(cfg.GetAPITimeout())},
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)
	return a, nil
}

type appDeps struct {
	appName     string
	logger      zerolog.Logger
	provider    provider.Provider
	store       credentials.Store
	apiBaseURL  string
	permissions []string
	userFields  []string
	profileOpts []profile.ClientOption
}

func assembleApp(deps appDeps) (*app, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	options := []session.ManagerOption{
		session.WithLogger(deps.logger),
		session.WithMetrics(collector),
	}
	if len(deps.permissions) > 0 {
		options = append(options, session.WithPermissions(deps.permissions...))
	}
	if len(deps.userFields) > 0 {
		options = append(options, session.WithUserFields(deps.userFields...))
	}
	manager, err := session.New(deps.provider, deps.store, options...)
	if err != nil {
		return nil, err
	}

	client, err := profile.New(deps.apiBaseURL, append(deps.profileOpts, profile.WithMetrics(collector))...)
	if err != nil {
		return nil, err
	}

	return &app{
		appName:  deps.appName,
		logger:   deps.logger,
		manager:  manager,
		profile:  client,
		registry: registry,
	}, nil
}

func openStore(ctx context.Context, backend, dataFolder, passphrase string) (credentials.Store, func() error, error) {
	if passphrase == "" {
		return nil, nil, errors.New("STORE_PASSPHRASE must be set to open the credential store")
	}
	switch strings.ToLower(backend) {
	case config.StoreBackendSQLite:
		s, err := sqlitestore.Open(ctx, dataFolder, passphrase)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreBackendFile, "":
		s, err := filestore.New(filepath.Join(dataFolder, "credentials"), passphrase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
	return nil, nil, errors.Errorf("unknown store backend %q", backend)
}

// start restores any persisted session.
func (a *app) start(ctx context.Context) error {
	_, err := a.manager.Restore(ctx)
	return err
}

// authorize hands the profile client a live token, refreshing it first if
// the provider's copy has expired.
func (a *app) authorize(ctx context.Context) error {
	a.manager.RefreshTokenIfNeeded(ctx)
	token, err := a.manager.AccessToken(ctx)
	if err != nil {
		a.profile.ClearToken()
		return err
	}
	a.profile.SetToken(token)
	return nil
}

func (a *app) Close() error {
	a.manager.Close()
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return apperrors.Join(errs...)
}
