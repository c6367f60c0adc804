/*
Package server implements the application's network transport layer.
It initializes the HTTP server, configures timeouts, and manages
core service dependencies like the database, cache and the
reconciliation engine.
*/
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"MediSync_V1.0/internal/cache"
	"MediSync_V1.0/internal/clinical"
	"MediSync_V1.0/internal/database"
	"MediSync_V1.0/internal/patient"
	"MediSync_V1.0/internal/remote"
	"MediSync_V1.0/internal/telemetry"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
)

// memoryCacheSize bounds the hot tier; one entry per patient per namespace.
const memoryCacheSize = 4096

// Server defines the configuration and dependencies for the HTTP service.
type Server struct {
	// port specifies the TCP port the server will listen on.
	port int

	// db provides access to the database service and connection pool.
	db database.Service

	// metrics records the engine's pipeline checkpoints.
	metrics *telemetry.Recorder
}

// NewServer initializes the dependency graph and returns a configured
// *http.Server. It reads configuration from environment variables and sets
// production-ready network timeouts.
func NewServer() (*http.Server, error) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil || port == 0 {
		port = 8080
	}

	db, err := database.NewService()
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	store, err := buildCacheStore(db)
	if err != nil {
		return nil, fmt.Errorf("initialize cache store: %w", err)
	}

	metrics := telemetry.NewRecorder()
	engine := clinical.NewReconciler(store, buildRemoteClient(),
		append(placeholderOptions(), clinical.WithObserver(metrics))...)
	patient.Init(engine)

	newApp := &Server{
		port:    port,
		db:      db,
		metrics: metrics,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", newApp.port),
		Handler:      newApp.RegisterRoutes(), // Injected from routes.go
		IdleTimeout:  time.Minute,             // Time to wait for the next request on keep-alive connections.
		ReadTimeout:  10 * time.Second,        // Maximum duration for reading the entire request.
		WriteTimeout: 30 * time.Second,        // Maximum duration before timing out writes of the response.
	}

	return server, nil
}

// buildCacheStore layers the in-process LRU in front of the Postgres table.
func buildCacheStore(db database.Service) (cache.Store, error) {
	hot, err := cache.NewMemoryStore(memoryCacheSize)
	if err != nil {
		return nil, err
	}

	durable := cache.NewPostgresStore(db.Pool())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := durable.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	return cache.NewLayeredStore(hot, durable), nil
}

// buildRemoteClient constructs the remote store client, or nil when no
// endpoint is configured (cache-only deployment, used in development).
func buildRemoteClient() clinical.RemoteFetcher {
	base := os.Getenv("REMOTE_API_BASE")
	if base == "" {
		log.Warn().Msg("REMOTE_API_BASE not set, running cache-only")
		return nil
	}
	return remote.NewClient(base, os.Getenv("REMOTE_API_TOKEN"), 15*time.Second)
}

// placeholderOptions reads the legacy placeholder-date filter settings.
// PLACEHOLDER_DATE=off disables the filter; any parseable value overrides
// the default migration timestamp.
func placeholderOptions() []clinical.Option {
	raw := os.Getenv("PLACEHOLDER_DATE")
	switch raw {
	case "":
		return nil
	case "off", "none":
		return []clinical.Option{clinical.WithoutPlaceholderFilter()}
	}

	t := clinical.ParseFlexibleDate(raw)
	if clinical.IsEpochFallback(t) {
		log.Warn().Str("value", raw).Msg("Unparseable PLACEHOLDER_DATE, keeping default")
		return nil
	}
	return []clinical.Option{clinical.WithPlaceholderDate(t)}
}
