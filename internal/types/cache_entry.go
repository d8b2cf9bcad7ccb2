package types

import (
	"time"
)

// CacheEntry memoizes one derived computation for a dataset. The entry is
// keyed by (dataset_id, signature); the signature encodes the operation name
// plus every parameter that affects its output.
type CacheEntry struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	DatasetID int64  `gorm:"column:dataset_id;not null;uniqueIndex:idx_cache_dataset_signature,priority:1" json:"dataset_id"`
	Signature string `gorm:"column:signature;not null;uniqueIndex:idx_cache_dataset_signature,priority:2" json:"signature"`

	// Opaque result payload: JSON text for summaries, PNG bytes for charts.
	Payload []byte `gorm:"column:payload;not null" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (CacheEntry) TableName() string { return "operation_cache" }
