package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/types"
	"github.com/dverasc/datalens-backend/internal/utils"
)

type DatabaseService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewDatabaseService opens the backing store. SQLite is the default so the
// service runs single-node with zero setup; DB_DRIVER=postgres switches to a
// shared server. TranslateError is required so unique-constraint violations
// surface as gorm.ErrDuplicatedKey on both drivers.
func NewDatabaseService(log *logger.Logger) (*DatabaseService, error) {
	serviceLog := log.With("service", "DatabaseService")

	driver := utils.GetEnv("DB_DRIVER", "sqlite", log)

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
		postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
		postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
		postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		postgresName := utils.GetEnv("POSTGRES_NAME", "datalens", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)
		dialector = postgres.Open(dsn)
	default:
		sqlitePath := utils.GetEnv("SQLITE_PATH", filepath.Join(".data", "database.db"), log)
		if dir := filepath.Dir(sqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(sqlitePath)
	}

	serviceLog.Info("Connecting to database...", "driver", driver)
	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &DatabaseService{db: gdb, log: serviceLog}, nil
}

func (s *DatabaseService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Dataset{},
		&types.CacheEntry{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *DatabaseService) DB() *gorm.DB {
	return s.db
}
