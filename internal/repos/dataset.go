package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/types"
)

var (
	// ErrDatasetNotFound is returned by GetByID when no row exists for the id.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrBlobRefConflict is returned by Create when the blob reference already
	// belongs to another dataset.
	ErrBlobRefConflict = errors.New("blob ref already in use")
)

type DatasetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, dataset *types.Dataset) (*types.Dataset, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Dataset, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Dataset, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, id int64) error
}

type datasetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetRepo(db *gorm.DB, baseLog *logger.Logger) DatasetRepo {
	repoLog := baseLog.With("repo", "DatasetRepo")
	return &datasetRepo{db: db, log: repoLog}
}

func (r *datasetRepo) Create(ctx context.Context, tx *gorm.DB, dataset *types.Dataset) (*types.Dataset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrBlobRefConflict
		}
		return nil, err
	}
	return dataset, nil
}

func (r *datasetRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Dataset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Dataset
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	return &result, nil
}

// List returns every dataset ordered by creation time ascending so client
// listings never reorder between calls. ID breaks ties for rows created in
// the same instant.
func (r *datasetRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Dataset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Dataset
	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteByID is idempotent at the repo level: deleting an absent row is a
// no-op. Callers that need a NotFound for the client check existence first.
func (r *datasetRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Dataset{}).Error; err != nil {
		return err
	}
	return nil
}
