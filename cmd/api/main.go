// Redgrouse Backend API
//
// Bird-sighting CSV ingestion, query, and vector-tile serving API.
//
//	@title			Redgrouse Backend API
//	@version		1.0
//	@description	Bird-sighting CSV ingestion, query, and vector-tile serving API
//
//	@license.name	MIT
//
//	@host		localhost:3001
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Edit token minted on upload, required for replace/rename/delete
//
//	@tag.name			Uploads
//	@tag.description	Upload lifecycle: create, replace, rename, delete
//
//	@tag.name			Sightings
//	@tag.description	Sightings query, count, grouping, and statistics
//
//	@tag.name			Fields
//	@tag.description	Filterable field catalogue
//
//	@tag.name			Tiles
//	@tag.description	Vector tile serving
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/redgrouse/backend/docs"
	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/config"
	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/geocoder"
	"github.com/redgrouse/backend/internal/handlers"
	"github.com/redgrouse/backend/internal/ratelimit"
	"github.com/redgrouse/backend/internal/read"
	"github.com/redgrouse/backend/internal/tiles"
	"github.com/redgrouse/backend/internal/uploadsvc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.Default()

	database, err := db.Open(cfg.SQLitePath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(db.Migrations()); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	geo, err := geocoder.New()
	if err != nil {
		log.Fatalf("failed to load geocoder: %v", err)
	}

	pool := blocking.New(4)
	nameIndex := read.NewNameIndexCache()
	tileCache := tiles.NewCache()
	limiter := ratelimit.New(ratelimit.DefaultLimits())

	uploads := uploadsvc.New(database.Write, geo, pool, nameIndex, tileCache, logger)

	h := handlers.New(database, uploads, nameIndex, tileCache, pool, limiter, cfg.RequestTimeout, cfg.DBTimeout, cfg.ZipTimeout, logger)
	router := handlers.NewRouter(h, cfg.BuildVersion)
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
