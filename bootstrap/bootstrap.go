// Package bootstrap wires the runtime and its collaborators from
// configuration: logger, definition cache, loader chain, metrics and the
// remote connector.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	apihttp "github.com/artpar/resrun/adapters/http"
	"github.com/artpar/resrun/adapters/idgen"
	"github.com/artpar/resrun/adapters/memory"
	"github.com/artpar/resrun/adapters/metrics"
	"github.com/artpar/resrun/adapters/remote"
	"github.com/artpar/resrun/adapters/sqlite"
	"github.com/artpar/resrun/config"
	"github.com/artpar/resrun/core/definition"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/runtime"
	"github.com/artpar/resrun/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// App represents the wired application.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Config
	Runtime *runtime.Runtime

	// DB is set when the cache driver is sqlite.
	DB *sqlite.DB

	// Store is the published-definition cache; nil when disabled.
	Store ports.DefinitionStore

	Files   *definition.FileLoader
	Metrics *metrics.Collector

	HTTPServer *http.Server

	metricsHandler http.Handler
	holder         *config.Holder
}

// Options provides optional inputs for application initialization.
type Options struct {
	// Version is the build version, used when runtime.version is unset.
	Version string

	// Output receives printed text. Defaults to stdout.
	Output io.Writer

	// Logger overrides the logger built from the logging config.
	Logger *zerolog.Logger

	// Registry receives metrics. Defaults to the global registry.
	Registry *prometheus.Registry
}

// New creates and wires the application.
func New(cfg *config.Config, opts Options) (*App, error) {
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = SetupLogger(cfg.Logging, os.Stderr)
	}

	a := &App{
		Logger: logger,
		Config: cfg,
		Files:  definition.NewFileLoader(logger),
	}

	if err := a.initCache(); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	if cfg.Metrics.Enabled {
		if opts.Registry != nil {
			a.Metrics = metrics.NewWithRegistry(opts.Registry)
			a.metricsHandler = promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
		} else {
			a.Metrics = metrics.New()
		}
		logger.Info().Msg("prometheus metrics enabled")
	}

	connector, err := a.newConnector()
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	version := cfg.Runtime.Version
	if version == "" {
		version = opts.Version
	}

	rc := runtime.Config{
		Name:    cfg.Runtime.Name,
		Version: version,
		Values:  cfg.Values,
		Loader:  a.loader(),
		Remote:  connector,
		Output:  opts.Output,
		Logger:  logger,
	}
	if a.Metrics != nil {
		rc.Observer = a.Metrics
	}
	a.Runtime = runtime.New(rc)

	if cfg.Definitions.Watch {
		if err := a.Files.Watch(); err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("watch definitions: %w", err)
		}
		a.Files.OnChange(func(path string) {
			a.Logger.Info().Str("path", path).Msg("definition changed, cache invalidated")
		})
	}

	logger.Debug().
		Str("runtime", cfg.Runtime.Name+"@"+version).
		Str("cache", cfg.Cache.Driver).
		Msg("runtime initialized")
	return a, nil
}

func (a *App) initCache() error {
	switch a.Config.Cache.Driver {
	case config.CacheNone:
		return nil
	case config.CacheMemory:
		a.Store = memory.NewDefinitionStore()
		return nil
	}

	db, err := sqlite.Open(a.Config.Cache.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Store = sqlite.NewDefinitionStore(db)
	a.Logger.Debug().Str("dsn", a.Config.Cache.DSN).Msg("definition cache initialized")
	return nil
}

// loader resolves files first and falls back to published definitions.
func (a *App) loader() resource.Loader {
	if a.Store == nil {
		return a.Files
	}
	return definition.Chain{a.Files, definition.StoreLoader{Store: a.Store}}
}

func (a *App) newConnector() (*remote.Connector, error) {
	ids, err := idgen.ByName(a.Config.Remote.RequestIDs)
	if err != nil {
		return nil, err
	}
	return &remote.Connector{
		Timeout: a.Config.Remote.Timeout,
		Headers: a.Config.Remote.Headers,
		IDs:     ids,
		Logger:  a.Logger,
	}, nil
}

// LoadDefinitions loads and registers every definition under the
// configured paths.
func (a *App) LoadDefinitions(ctx context.Context) ([]*resource.Resource, error) {
	if len(a.Config.Definitions.Paths) == 0 {
		return nil, nil
	}
	sources, err := definition.ParsePaths(a.Config.Definitions.Paths)
	if err != nil {
		return nil, err
	}
	loaded, err := a.Runtime.LoadAll(ctx, sources)
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Int("count", len(loaded)).Msg("definitions loaded")
	return loaded, nil
}

// Open loads the definition at ref relative to the working directory and
// registers it when it is named. A definition already registered from the
// same location is returned as is.
func (a *App) Open(ctx context.Context, ref string) (*resource.Resource, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	res, err := a.Runtime.Load(ctx, ref, wd)
	if err != nil {
		return nil, err
	}

	name := res.Meta().Name
	if name == "" {
		return res, nil
	}
	if existing, err := a.Runtime.Get(name); err == nil && existing.Location() == res.Location() {
		return existing, nil
	}
	if err := a.Runtime.Register(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Publish stores the canonical form of res in the definition cache under
// its name and version.
func (a *App) Publish(ctx context.Context, res *resource.Resource) (ports.Publication, error) {
	if a.Store == nil {
		return ports.Publication{}, errors.New("publish: definition cache is disabled")
	}
	if res.Meta().Name == "" {
		return ports.Publication{}, errors.New("publish: resource has no @name")
	}

	data, err := json.Marshal(res.Serialize())
	if err != nil {
		return ports.Publication{}, fmt.Errorf("publish: encode: %w", err)
	}
	pub := ports.Publication{
		Name:        res.Name(),
		Version:     res.Meta().Version,
		Definition:  data,
		PublishedAt: time.Now().UTC(),
	}
	if err := a.Store.Put(ctx, pub); err != nil {
		return ports.Publication{}, fmt.Errorf("publish: %w", err)
	}

	a.Logger.Info().
		Str("name", pub.Name).
		Str("version", pub.Version).
		Msg("definition published")
	return pub, nil
}

// Handler builds the HTTP handler serving root over JSON-RPC.
func (a *App) Handler(root *resource.Resource) http.Handler {
	var health *apihttp.HealthHandler
	if a.DB != nil {
		health = apihttp.NewHealthHandler(a.DB)
	}

	return apihttp.NewRouter(apihttp.NewHandler(root, a.Logger), health, a.Logger, apihttp.RouterConfig{
		Path:           a.Config.Server.Path,
		Service:        a.Config.Runtime.Name,
		Version:        a.Runtime.Env().RuntimeVersion,
		Metrics:        a.Metrics,
		MetricsHandler: a.metricsHandler,
		MetricsPath:    a.Config.Metrics.Path,
		Timeout:        a.Config.Server.WriteTimeout,
	})
}

// Serve serves root until ctx is canceled or the process is interrupted.
func (a *App) Serve(ctx context.Context, root *resource.Resource) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.ServeListener(ctx, ln, root)
}

// ServeListener serves root on ln until ctx is canceled or the process is
// interrupted.
func (a *App) ServeListener(ctx context.Context, ln net.Listener, root *resource.Resource) error {
	a.HTTPServer = &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      a.Handler(root),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Str("path", a.Config.Server.Path).
			Msg("starting json-rpc server")
		if err := a.HTTPServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// WatchConfig applies reloads of h: the log level follows the file and
// reloads are counted when metrics are enabled.
func (a *App) WatchConfig(h *config.Holder) error {
	a.holder = h
	h.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	})
	if a.Metrics != nil {
		h.OnReload(func(err error) {
			if err != nil {
				a.Metrics.ConfigReloadErrors.Inc()
				return
			}
			a.Metrics.ConfigReloads.Inc()
		})
	}
	h.WatchSignals()
	return h.WatchFile()
}

// Shutdown releases the application's resources.
func (a *App) Shutdown() error {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.Files != nil {
		a.Files.Stop()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			return err
		}
	}
	a.Logger.Debug().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the logger described by cfg. An empty format selects
// console output when out is a terminal and JSON otherwise.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	format := cfg.Format
	if format == "" {
		format = "json"
		if isTerminal(out) {
			format = "console"
		}
	}

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
