package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dverasc/datalens-backend/internal/apierr"
	"github.com/dverasc/datalens-backend/internal/blobstore"
	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/repos"
	"github.com/dverasc/datalens-backend/internal/tabular"
	"github.com/dverasc/datalens-backend/internal/types"
)

// Operation names used to derive cache signatures. A parameterless operation
// is keyed by its name alone; chart signatures append both axes in request
// order, so (x=a,y=b) and (x=b,y=a) never collide.
const (
	describeOperation = "describe"
	chartOperation    = "chart"
)

func chartSignature(xColumn, yColumn string) string {
	return fmt.Sprintf("%s:%s:%s", chartOperation, xColumn, yColumn)
}

// Describer is the stats collaborator boundary: a pure function from a parsed
// frame to a serialized summary.
type Describer interface {
	Describe(frame *tabular.Frame) ([]byte, error)
}

// ChartRenderer is the chart collaborator boundary: pure given the same frame
// and axes, fails if a column is absent from the data.
type ChartRenderer interface {
	Render(frame *tabular.Frame, xColumn, yColumn string) ([]byte, error)
}

type DatasetSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type DatasetService interface {
	Upload(ctx context.Context, fileName string, content []byte) (*types.Dataset, string, error)
	List(ctx context.Context) ([]DatasetSummary, error)
	Delete(ctx context.Context, id int64) error
	Download(ctx context.Context, id int64) (string, []byte, error)
	Summarize(ctx context.Context, id int64) ([]byte, error)
	Chart(ctx context.Context, id int64, xColumn, yColumn string) ([]byte, error)
}

type datasetService struct {
	db          *gorm.DB
	log         *logger.Logger
	datasetRepo repos.DatasetRepo
	cacheRepo   repos.CacheEntryRepo
	blobStore   blobstore.Store
	describer   Describer
	renderer    ChartRenderer

	// Bounds concurrent stat/chart computation so a burst of slow renders
	// cannot starve upload handling.
	computeSem *semaphore.Weighted
}

func NewDatasetService(
	db *gorm.DB,
	baseLog *logger.Logger,
	datasetRepo repos.DatasetRepo,
	cacheRepo repos.CacheEntryRepo,
	blobStore blobstore.Store,
	describer Describer,
	renderer ChartRenderer,
	computeWorkers int,
) DatasetService {
	serviceLog := baseLog.With("service", "DatasetService")
	if computeWorkers < 1 {
		computeWorkers = 1
	}
	return &datasetService{
		db:          db,
		log:         serviceLog,
		datasetRepo: datasetRepo,
		cacheRepo:   cacheRepo,
		blobStore:   blobStore,
		describer:   describer,
		renderer:    renderer,
		computeSem:  semaphore.NewWeighted(int64(computeWorkers)),
	}
}

// Upload persists the assembled payload and registers the dataset as one
// logical transaction: when the registry insert fails, the just-written blob
// is rolled back so no orphan file remains.
func (s *datasetService) Upload(ctx context.Context, fileName string, content []byte) (*types.Dataset, string, error) {
	if fileName == "" {
		return nil, "", apierr.Invalid("file_name_required", fmt.Errorf("file name is required"))
	}
	s.log.Info("Upload", "file_name", fileName, "size_bytes", len(content))

	blobRef, err := s.blobStore.Save(content, fileName)
	if err != nil {
		s.log.Error("Upload blob save failed", "file_name", fileName, "error", err)
		return nil, "", apierr.Internal("storage_error", err)
	}

	dataset := &types.Dataset{
		DisplayName: fileName,
		BlobRef:     blobRef,
		FileType:    "CSV",
		SizeBytes:   int64(len(content)),
		Columns:     datatypes.JSON(columnMetadata(content)),
		CreatedAt:   time.Now().UTC(),
	}

	if _, err := s.datasetRepo.Create(ctx, nil, dataset); err != nil {
		if delErr := s.blobStore.Delete(blobRef); delErr != nil {
			s.log.Warn("Upload rollback blob delete failed", "blob_ref", blobRef, "error", delErr)
		}
		if errors.Is(err, repos.ErrBlobRefConflict) {
			return nil, "", apierr.Conflict("duplicate_blob_ref", err)
		}
		s.log.Error("Upload dataset create failed", "file_name", fileName, "error", err)
		return nil, "", apierr.Internal("registry_error", err)
	}

	message := fmt.Sprintf("File '%s' uploaded successfully.", fileName)
	return dataset, message, nil
}

func (s *datasetService) List(ctx context.Context) ([]DatasetSummary, error) {
	datasets, err := s.datasetRepo.List(ctx, nil)
	if err != nil {
		s.log.Error("List failed", "error", err)
		return nil, apierr.Internal("registry_error", err)
	}
	summaries := make([]DatasetSummary, len(datasets))
	for i, ds := range datasets {
		summaries[i] = DatasetSummary{
			ID:        ds.ID,
			Name:      ds.DisplayName,
			CreatedAt: ds.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
	}
	return summaries, nil
}

// Delete removes the dataset. Cache invalidation happens in the same
// transaction as the registry row removal, never after it, so a deleted
// dataset can never serve stale cached results. The blob delete afterwards is
// best effort and must not mask the outcome.
func (s *datasetService) Delete(ctx context.Context, id int64) error {
	dataset, err := s.datasetRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repos.ErrDatasetNotFound) {
			return apierr.NotFound("dataset_not_found", fmt.Errorf("dataset with id %d not found", id))
		}
		s.log.Error("Delete lookup failed", "dataset_id", id, "error", err)
		return apierr.Internal("registry_error", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.cacheRepo.DeleteByDatasetID(ctx, tx, id); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
		if err := s.datasetRepo.DeleteByID(ctx, tx, id); err != nil {
			return fmt.Errorf("remove dataset row: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("Delete failed", "dataset_id", id, "error", err)
		return apierr.Internal("registry_error", err)
	}

	if err := s.blobStore.Delete(dataset.BlobRef); err != nil {
		s.log.Warn("Delete blob cleanup failed", "dataset_id", id, "blob_ref", dataset.BlobRef, "error", err)
	}
	return nil
}

func (s *datasetService) Download(ctx context.Context, id int64) (string, []byte, error) {
	dataset, err := s.datasetRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repos.ErrDatasetNotFound) {
			return "", nil, apierr.NotFound("dataset_not_found", fmt.Errorf("dataset with id %d not found", id))
		}
		s.log.Error("Download lookup failed", "dataset_id", id, "error", err)
		return "", nil, apierr.Internal("registry_error", err)
	}

	content, err := s.blobStore.Read(dataset.BlobRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", nil, apierr.NotFound("blob_missing", fmt.Errorf("file for dataset %d is missing", id))
		}
		s.log.Error("Download blob read failed", "dataset_id", id, "error", err)
		return "", nil, apierr.Internal("storage_error", err)
	}
	return dataset.DisplayName, content, nil
}

func (s *datasetService) Summarize(ctx context.Context, id int64) ([]byte, error) {
	return s.cachedCompute(ctx, id, describeOperation, func(frame *tabular.Frame) ([]byte, error) {
		return s.describer.Describe(frame)
	})
}

func (s *datasetService) Chart(ctx context.Context, id int64, xColumn, yColumn string) ([]byte, error) {
	if xColumn == "" || yColumn == "" {
		return nil, apierr.Invalid("axes_required", fmt.Errorf("both x and y axis columns are required"))
	}
	return s.cachedCompute(ctx, id, chartSignature(xColumn, yColumn), func(frame *tabular.Frame) ([]byte, error) {
		return s.renderer.Render(frame, xColumn, yColumn)
	})
}

// cachedCompute is the shared state machine for derived-artifact requests:
// cache hit returns the stored payload; a miss resolves the blob, runs the
// collaborator under the bounded semaphore, writes through the cache and
// returns the fresh result.
func (s *datasetService) cachedCompute(ctx context.Context, id int64, signature string, compute func(*tabular.Frame) ([]byte, error)) ([]byte, error) {
	payload, err := s.cacheRepo.Get(ctx, nil, id, signature)
	if err == nil {
		s.log.Debug("Cache hit", "dataset_id", id, "signature", signature)
		return payload, nil
	}
	if !errors.Is(err, repos.ErrCacheMiss) {
		s.log.Error("Cache lookup failed", "dataset_id", id, "signature", signature, "error", err)
		return nil, apierr.Internal("cache_error", err)
	}

	dataset, err := s.datasetRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repos.ErrDatasetNotFound) {
			return nil, apierr.NotFound("dataset_not_found", fmt.Errorf("dataset with id %d not found", id))
		}
		s.log.Error("Compute lookup failed", "dataset_id", id, "error", err)
		return nil, apierr.Internal("registry_error", err)
	}

	content, err := s.blobStore.Read(dataset.BlobRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, apierr.NotFound("blob_missing", fmt.Errorf("file for dataset %d is missing", id))
		}
		s.log.Error("Compute blob read failed", "dataset_id", id, "error", err)
		return nil, apierr.Internal("storage_error", err)
	}

	frame, err := tabular.ParseCSV(content)
	if err != nil {
		return nil, apierr.Internal("parse_error", err)
	}

	if err := s.computeSem.Acquire(ctx, 1); err != nil {
		return nil, apierr.Internal("compute_cancelled", err)
	}
	result, err := compute(frame)
	s.computeSem.Release(1)
	if err != nil {
		s.log.Error("Compute failed", "dataset_id", id, "signature", signature, "error", err)
		return nil, apierr.Internal("compute_error", err)
	}

	entry := &types.CacheEntry{
		DatasetID: id,
		Signature: signature,
		Payload:   result,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.cacheRepo.Put(ctx, nil, entry); err != nil {
		s.log.Error("Cache write failed", "dataset_id", id, "signature", signature, "error", err)
		return nil, apierr.Internal("cache_error", err)
	}
	return result, nil
}

// columnMetadata parses the CSV header so listings can expose the available
// axes without re-reading the blob. Best effort: an unparsable payload simply
// yields no metadata.
func columnMetadata(content []byte) []byte {
	frame, err := tabular.ParseCSV(content)
	if err != nil {
		return nil
	}
	raw, err := json.Marshal(frame.Columns)
	if err != nil {
		return nil
	}
	return raw
}
