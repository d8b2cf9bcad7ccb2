package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dverasc/datalens-backend/internal/blobstore"
	"github.com/dverasc/datalens-backend/internal/db"
	"github.com/dverasc/datalens-backend/internal/handlers"
	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/observability"
	"github.com/dverasc/datalens-backend/internal/repos"
	"github.com/dverasc/datalens-backend/internal/server"
	"github.com/dverasc/datalens-backend/internal/services"
	"github.com/dverasc/datalens-backend/internal/tabular"
	"github.com/dverasc/datalens-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "datalens-backend",
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = databaseService.AutoMigrateAll(); err != nil {
		log.Error("Database auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := databaseService.DB()

	// Blob store
	blobDir := utils.GetEnv("BLOB_DIR", filepath.Join(".data", "blobs"), log)
	blobStore, err := blobstore.NewDiskStore(blobDir, log)
	if err != nil {
		log.Error("Could not init blob store", "error", err)
		os.Exit(1)
	}

	// Repos
	log.Info("Setting up repos from main...")
	datasetRepo := repos.NewDatasetRepo(theDB, log)
	cacheEntryRepo := repos.NewCacheEntryRepo(theDB, log)

	// Compute collaborators
	describer := tabular.NewDescriber()
	renderer, err := tabular.NewRenderer(log)
	if err != nil {
		log.Error("Could not init chart renderer", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services from main...")
	computeWorkers := utils.GetEnvAsInt("COMPUTE_WORKERS", 4, log)
	datasetService := services.NewDatasetService(theDB, log, datasetRepo, cacheEntryRepo, blobStore, describer, renderer, computeWorkers)

	// Handlers
	log.Info("Setting up handlers from main...")
	datasetHandler := handlers.NewDatasetHandler(log, datasetService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    "datalens-backend",
		DatasetHandler: datasetHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
