package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Joseda-hg/todoapi/internal/config"
	"github.com/Joseda-hg/todoapi/internal/db"
	"github.com/Joseda-hg/todoapi/internal/docstore"
	"github.com/Joseda-hg/todoapi/internal/secrets"
	"github.com/Joseda-hg/todoapi/internal/store"
	"github.com/Joseda-hg/todoapi/internal/tracing"
	"github.com/Joseda-hg/todoapi/internal/tui"
	"github.com/Joseda-hg/todoapi/internal/web"
)

var logger = loggo.GetLogger("todoapi")

const (
	mongoDialTimeout = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

type Globals struct {
	Config           string   `help:"Config file path." type:"path" env:"TODO_CONFIG"`
	Backend          string   `help:"Storage backend (sql or mongo)." env:"TODO_BACKEND"`
	DatabaseURL      string   `help:"SQLite path or PostgreSQL URL." name:"database-url" env:"AZURE_POSTGRESQL_CONNECTION_STRING,TODO_DATABASE_URL"`
	MongoURL         string   `help:"MongoDB connection string." name:"mongo-url" env:"AZURE_COSMOS_CONNECTION_STRING"`
	MongoDatabase    string   `help:"MongoDB database name." name:"mongo-database" env:"AZURE_COSMOS_DATABASE_NAME"`
	Port             int      `help:"HTTP port." short:"p" env:"TODO_PORT"`
	Environment      string   `help:"Deployment environment; develop allows every CORS origin." env:"API_ENVIRONMENT"`
	AllowOrigins     []string `help:"Extra CORS origins." name:"allow-origins" env:"API_ALLOW_ORIGINS"`
	KeyVaultEndpoint string   `help:"Azure Key Vault endpoint to read secrets from." name:"key-vault-endpoint" env:"AZURE_KEY_VAULT_ENDPOINT"`
	VaultAddress     string   `help:"Vault address to read secrets from." name:"vault-address" env:"VAULT_ADDR"`
	VaultPath        string   `help:"Vault secret path, mount first; prefix kv1: for KV version 1." name:"vault-path" env:"TODO_VAULT_PATH"`
	TraceEndpoint    string   `help:"OTLP/gRPC trace endpoint." name:"trace-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceInsecure    bool     `help:"Disable TLS for the trace exporter." name:"trace-insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName      string   `help:"Service name reported with traces." name:"service-name" env:"APPLICATIONINSIGHTS_ROLENAME"`
	LogLevel         string   `help:"loggo logging config, e.g. <root>=DEBUG." name:"log-level" env:"TODO_LOG_LEVEL"`
}

type CLI struct {
	Globals

	Serve  ServeCmd  `cmd:"" default:"1" help:"Serve the todo HTTP API."`
	TUI    TUICmd    `cmd:"" name:"tui" help:"Browse and edit todo lists in the terminal."`
	Config ConfigCmd `cmd:"" help:"Manage the config file."`
}

type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write the effective config to the config file."`
}

// config loads the config file and overlays every flag that was set.
func (g *Globals) config() (string, config.Config, error) {
	path := g.Config
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return "", config.Config{}, err
		}
		path = defaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return "", config.Config{}, errors.Annotatef(err, "load %s", path)
	}

	overlay := map[*string]string{
		&cfg.Backend:          g.Backend,
		&cfg.DatabaseURL:      g.DatabaseURL,
		&cfg.MongoURL:         g.MongoURL,
		&cfg.MongoDatabase:    g.MongoDatabase,
		&cfg.Environment:      g.Environment,
		&cfg.KeyVaultEndpoint: g.KeyVaultEndpoint,
		&cfg.VaultAddress:     g.VaultAddress,
		&cfg.VaultPath:        g.VaultPath,
		&cfg.TraceEndpoint:    g.TraceEndpoint,
		&cfg.ServiceName:      g.ServiceName,
		&cfg.LogLevel:         g.LogLevel,
	}
	for field, value := range overlay {
		if value != "" {
			*field = value
		}
	}
	if g.Port != 0 {
		cfg.WebPort = g.Port
	}
	if len(g.AllowOrigins) > 0 {
		cfg.AllowOrigins = g.AllowOrigins
	}
	if g.TraceInsecure {
		cfg.TraceInsecure = true
	}
	if cfg.Backend == config.BackendSQL && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = config.DefaultDatabasePath(path)
	}
	return path, cfg, nil
}

// prepare resolves the config, applies secrets and opens the configured
// store.
func (g *Globals) prepare(ctx context.Context) (config.Config, store.Store, error) {
	_, cfg, err := g.config()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := loggo.ConfigureLoggers(cfg.LogLevel); err != nil {
		return config.Config{}, nil, errors.Annotate(err, "log level")
	}

	sources, err := secrets.Sources(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := secrets.Load(ctx, &cfg, sources...); err != nil {
		return config.Config{}, nil, err
	}
	if err := loggo.ConfigureLoggers(cfg.LogLevel); err != nil {
		return config.Config{}, nil, errors.Annotate(err, "log level")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, st, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.Backend == config.BackendMongo {
		st, err := docstore.Dial(cfg.MongoURL, cfg.MongoDatabase, mongoDialTimeout)
		if err != nil {
			return nil, err
		}
		logger.Infof("using mongo database %q", cfg.MongoDatabase)
		return st, nil
	}

	dialect, source := db.ParseDSN(cfg.DatabaseURL)
	if dialect == db.DialectSQLite && source != ":memory:" {
		if err := config.EnsureDir(source); err != nil {
			return nil, err
		}
	}
	conn, dialect, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Infof("using %s database", dialect)
	return db.NewStore(conn, dialect), nil
}

type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, st, err := g.prepare(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warningf("closing store: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server, err := web.NewServer(st,
		web.WithOrigins(cfg.OriginList()),
		web.WithRegistry(registry),
	)
	if err != nil {
		return err
	}
	handler := server.Handler()

	if cfg.TraceEndpoint != "" {
		provider, err := tracing.Setup(ctx, cfg.TraceEndpoint, cfg.TraceInsecure, cfg.ServiceName)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warningf("flushing traces: %v", err)
			}
		}()
		handler = provider.Handler(handler, cfg.ServiceName)
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.WebPort)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("web server running at http://localhost%s", httpServer.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Annotate(err, "web server")
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Annotate(err, "shutdown web server")
	}
	return nil
}

type TUICmd struct{}

func (c *TUICmd) Run(g *Globals) error {
	// Log output would draw over the terminal UI.
	if _, err := loggo.RemoveWriter("default"); err != nil {
		return errors.Trace(err)
	}

	_, st, err := g.prepare(context.Background())
	if err != nil {
		return err
	}
	defer st.Close()

	return tui.Run(st, clock.WallClock)
}

type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(g *Globals) error {
	path, cfg, err := g.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("todoapi"),
		kong.Description("Todo list HTTP API with SQL and MongoDB storage."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
	)
	err := ctx.Run()
	if err != nil {
		logger.Debugf("%s", errors.ErrorStack(err))
	}
	ctx.FatalIfErrorf(err)
}
