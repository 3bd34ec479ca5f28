package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"proctored-quiz-engine/internal/app"
	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/config"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/infra/memory"
	mongostore "proctored-quiz-engine/internal/infra/mongo"
	"proctored-quiz-engine/internal/infra/postgres"
	redisstore "proctored-quiz-engine/internal/infra/redis"
	"proctored-quiz-engine/internal/integrity"
	transport "proctored-quiz-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the proctoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)
	log.WithFields(logFields(cfg)).Info("backends configured")

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		source  catalog.Service
		gateway app.Gateway
	)
	if cfg.Postgres.URL != "" {
		if err := postgres.Migrate(ctx, cfg.Postgres.URL, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		source = postgres.NewCatalog(pool)
		gateway = postgres.NewGateway(pool)
	} else {
		log.Warn("postgres not configured, using the in-memory demo catalog")
		source = memory.NewCatalog(catalog.DemoSeed())
		gateway = memory.NewGateway()
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var (
		sessions app.SessionRepository
		recorder integrity.Recorders
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		source = redisstore.NewCachedCatalog(client, source, catalogTTL, log)
		sessions = redisstore.NewSessionStore(client, redisTTL, log)
		recorder = append(recorder, redisstore.NewInfractionLog(client, redisTTL))
	} else {
		source = memory.NewCachedCatalog(source, catalogTTL)
		sessions = memory.NewSessionStore()
	}

	if cfg.Mongo.URI != "" {
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		audit := mongostore.NewInfractionLog(client.Database(cfg.Mongo.Database))
		if err := audit.EnsureIndexes(ctx); err != nil {
			return err
		}
		recorder = append(recorder, audit)
	}

	deps := app.ServiceDeps{
		Sessions: sessions,
		Catalog:  source,
		Gateway:  gateway,
		Log:      log,
	}
	if len(recorder) > 0 {
		deps.Recorder = recorder
	}
	service := app.NewProctorService(app.ServiceConfig{
		Engine: app.EngineConfig{
			SecondsPerSubject: cfg.Engine.SecondsPerSubject,
			Mode:              cfg.Engine.Mode,
			Threshold:         cfg.Integrity.Threshold,
			Weights:           weightsFrom(cfg.Integrity.Weights),
		},
		QuestionLimit:  cfg.Catalog.QuestionLimit,
		Tick:           config.TTLDuration(cfg.Engine.Tick, time.Second),
		Retention:      config.TTLDuration(cfg.Engine.Retention, 10*time.Minute),
		ConsentTimeout: config.TTLDuration(cfg.Engine.ConsentTimeout, 15*time.Minute),
	}, deps)
	defer service.Close()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting proctoring service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// weightsFrom overlays configured weights on the defaults.
func weightsFrom(raw map[string]int) integrity.Weights {
	weights := integrity.DefaultWeights()
	for kind, weight := range raw {
		weights[domain.InfractionKind(kind)] = weight
	}
	return weights
}

// logFields reports which optional backends are enabled.
func logFields(cfg config.Config) logrus.Fields {
	return logrus.Fields{
		"postgres": cfg.Postgres.URL != "",
		"redis":    cfg.Redis.Addr != "",
		"mongo":    cfg.Mongo.URI != "",
	}
}
