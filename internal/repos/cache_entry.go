package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/types"
)

// ErrCacheMiss is returned by Get when no entry exists for the key.
var ErrCacheMiss = errors.New("cache miss")

type CacheEntryRepo interface {
	Get(ctx context.Context, tx *gorm.DB, datasetID int64, signature string) ([]byte, error)
	Put(ctx context.Context, tx *gorm.DB, entry *types.CacheEntry) error
	DeleteByDatasetID(ctx context.Context, tx *gorm.DB, datasetID int64) error
}

type cacheEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCacheEntryRepo(db *gorm.DB, baseLog *logger.Logger) CacheEntryRepo {
	repoLog := baseLog.With("repo", "CacheEntryRepo")
	return &cacheEntryRepo{db: db, log: repoLog}
}

func (r *cacheEntryRepo) Get(ctx context.Context, tx *gorm.DB, datasetID int64, signature string) ([]byte, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var entry types.CacheEntry
	if err := transaction.WithContext(ctx).
		Where("dataset_id = ? AND signature = ?", datasetID, signature).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return entry.Payload, nil
}

// Put stores a computed result. Concurrent fills for the same key may race;
// ON CONFLICT DO NOTHING keeps the first writer's row and reports success to
// the loser; the computation is deterministic, so either value serves.
func (r *cacheEntryRepo) Put(ctx context.Context, tx *gorm.DB, entry *types.CacheEntry) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dataset_id"}, {Name: "signature"}},
			DoNothing: true,
		}).
		Create(entry).Error; err != nil {
		return err
	}
	return nil
}

func (r *cacheEntryRepo) DeleteByDatasetID(ctx context.Context, tx *gorm.DB, datasetID int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Delete(&types.CacheEntry{}).Error; err != nil {
		return err
	}
	return nil
}
