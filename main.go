package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"genescore/adapters/genesets"
	"genescore/adapters/matrixio"
	"genescore/adapters/postgres"
	"genescore/adapters/rng"
	"genescore/app"
	"genescore/internal"
	"genescore/internal/admin"
	"genescore/internal/api"
	"genescore/internal/config"
	"genescore/internal/engine"
	"genescore/internal/errors"
	"genescore/internal/metrics"
	"genescore/internal/migration"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

var _ engine.Observer = (*metrics.Metrics)(nil)

// initDatabase connects to PostgreSQL and applies the schema
func initDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	return db, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	opts := []app.ServiceOption{app.WithLogger(logger), app.WithObserver(m)}
	checks := map[string]admin.Pinger{}

	if appConfig.Database.Enabled() {
		db, err := initDatabase(ctx, appConfig)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		opts = append(opts, app.WithRepository(postgres.NewScoreRepository(db)))
		checks["db"] = db
		log.Printf("Run storage enabled (schema %s)", migration.NewRunner().Version())
	} else {
		log.Println("DATABASE_URL not set, runs will not be stored")
	}

	svc := app.NewScoreService(rng.NewPCGAdapter(), matrixio.NewReader(logger), genesets.NewReader(logger), opts...)
	apiServer := api.NewServer(svc, appConfig.Scoring, appConfig.Server.RunTimeout, logger)

	servers := []*http.Server{{Addr: ":" + appConfig.Server.Port, Handler: apiServer}}
	if appConfig.Admin.Enabled {
		servers = append(servers, &http.Server{Addr: ":" + appConfig.Admin.Port, Handler: admin.New(m.Handler(), checks)})
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Printf("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Server on %s failed: %v", srv.Addr, err)
				stop()
			}
		}(srv)
	}

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown of %s: %v", srv.Addr, err)
		}
	}
	apiServer.Close()
}
