package types

import (
	"time"

	"gorm.io/datatypes"
)

type Dataset struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// User-facing label for the dataset, not the on-disk file name
	// (e.g. the user wants "survey answers" backed by survey.csv).
	DisplayName string `gorm:"column:display_name;size:255;not null" json:"display_name"`

	// Path of the stored blob on the server filesystem. Unique: no two
	// datasets may share a blob.
	BlobRef  string `gorm:"column:blob_ref;not null;uniqueIndex" json:"blob_ref"`
	FileType string `gorm:"column:file_type;size:10;not null;default:'CSV'" json:"file_type"`

	SizeBytes int64          `gorm:"column:size_bytes" json:"size_bytes"`
	Columns   datatypes.JSON `gorm:"column:columns" json:"columns,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (Dataset) TableName() string { return "dataset" }
