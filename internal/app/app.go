// Package app wires the application together: config, Genkit, the
// optional Postgres archive, the session manager, and the generation
// coordinator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/canvas/db"
	"github.com/koopa0/canvas/internal/artifact"
	"github.com/koopa0/canvas/internal/config"
	"github.com/koopa0/canvas/internal/generate"
	"github.com/koopa0/canvas/internal/session"
)

// App is the application container.
type App struct {
	Config      *config.Config
	Genkit      *genkit.Genkit
	Pool        *pgxpool.Pool     // nil when the archive is disabled
	Archive     *artifact.PGStore // nil when the archive is disabled
	Sessions    *session.Manager
	Coordinator *generate.Coordinator

	logger *slog.Logger
}

// Setup initializes all components. The archive is optional; without
// postgres_host the engine keeps history in memory only.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g, err := initGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Genkit:   g,
		Sessions: session.NewManager(logger),
		logger:   logger,
	}

	if cfg.ArchiveEnabled() {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		a.Archive = artifact.NewPGStore(pool, logger)
	}

	client := generate.NewGenkitClient(g, cfg.FullModelName())
	gcfg := generate.Config{
		Client:   client,
		Registry: generate.NewRegistry(cfg.GenerationCooldown),
		Logger:   logger,
	}
	if a.Archive != nil {
		gcfg.Archive = a.Archive
	}
	coordinator, err := generate.New(gcfg)
	if err != nil {
		if a.Pool != nil {
			a.Pool.Close()
		}
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	a.Coordinator = coordinator

	return a, nil
}

// Close releases held resources.
func (a *App) Close() error {
	a.logger.Info("shutting down application")
	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}

// initGenkit initializes Genkit with the configured provider's plugin.
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no model auto-discovery.
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		return g, nil

	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		return g, nil

	default:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		return g, nil
	}
}

// openPool runs migrations and opens the archive connection pool.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
