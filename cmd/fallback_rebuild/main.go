// Command fallback_rebuild recomputes fallback entries, for one itinerary or
// for every upcoming slot. Run it nightly.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trip-pivot-be/internal/bootstrap"
	"trip-pivot-be/internal/config"
	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/database"

	"github.com/google/uuid"
)

func main() {
	itinerary := flag.String("itinerary", "", "rebuild a single itinerary (default: all)")
	flag.Parse()

	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	container, err := bootstrap.NewContainer(db, cfg, sysLogger)
	if err != nil {
		log.Fatalf("Error: Unable to build container: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var results []*dto.RebuildFallbacksResponse
	if *itinerary != "" {
		id, err := uuid.Parse(*itinerary)
		if err != nil {
			log.Fatalf("Error: invalid itinerary id %q", *itinerary)
		}
		res, err := container.FallbackService.RebuildItinerary(ctx, id)
		if err != nil {
			log.Fatalf("Error: rebuild failed: %v", err)
		}
		results = append(results, res)
	} else {
		results, err = container.FallbackService.RebuildAll(ctx)
		if err != nil {
			log.Fatalf("Error: rebuild failed: %v", err)
		}
	}

	for _, res := range results {
		log.Printf("itinerary %s: %d slots, %d rebuilt, %d failed", res.ItineraryId, res.Slots, res.Rebuilt, res.Failed)
	}
}
