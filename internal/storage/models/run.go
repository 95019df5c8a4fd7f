// internal/storage/models/run.go
package models

import "time"

// Статусы запуска индексации
const (
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunFailed    = "failed"
)

// IngestionRun – запись об одном запуске индексации, только для аудита.
type IngestionRun struct {
	BaseModel
	RunID        string `gorm:"uniqueIndex;not null;type:varchar(36)"`
	Chain        string `gorm:"not null;type:varchar(20)"`
	Status       string `gorm:"not null;type:varchar(20)"`
	Requested    uint64 `gorm:"not null"`
	FromBlock    uint64
	ToBlock      uint64
	SuccessCount int `gorm:"default:0"`
	ErrorCount   int `gorm:"default:0"`
	Transactions int `gorm:"default:0"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string `gorm:"type:text"`
}

func (IngestionRun) TableName() string {
	return "ingestion_runs"
}
