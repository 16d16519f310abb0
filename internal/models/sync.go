// internal/models/sync.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SyncErrorDetails is the structured error payload persisted when an
// operation fails terminally.
type SyncErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Item    string `json:"item,omitempty"`
}

func (d SyncErrorDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *SyncErrorDetails) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return nil
}

// SyncOperation is one orchestrated pass of propagating data between stores.
// Lifecycle: pending -> running -> completed|failed, with cancelled reachable
// from pending or running. Progress never decreases within one operation.
type SyncOperation struct {
	BaseModel
	GroupID        uuid.UUID         `json:"group_id" gorm:"type:uuid;not null;index"`
	Type           OperationType     `json:"type" gorm:"type:varchar(20);not null;index"`
	Mode           SyncMode          `json:"mode" gorm:"type:varchar(20);default:'batch'"`
	SourceStoreID  *uuid.UUID        `json:"source_store_id" gorm:"type:uuid;index"`
	TargetStoreIDs pq.StringArray    `json:"target_store_ids" gorm:"type:text[]"`
	Status         OperationStatus   `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Progress       int               `json:"progress" gorm:"default:0"`
	ProcessedItems int               `json:"processed_items" gorm:"default:0"`
	TotalItems     int               `json:"total_items" gorm:"default:0"`
	FailedItems    int               `json:"failed_items" gorm:"default:0"`
	ErrorDetails   *SyncErrorDetails `json:"error_details,omitempty" gorm:"type:jsonb"`
	InitiatedBy    *uuid.UUID        `json:"initiated_by" gorm:"type:uuid"`
	StartedAt      *time.Time        `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at"`

	// Relationships
	Group       StoreGroup `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	SourceStore *Store     `json:"source_store,omitempty" gorm:"foreignKey:SourceStoreID"`
}

// IsTerminal reports whether the operation can no longer change state.
func (op *SyncOperation) IsTerminal() bool {
	switch op.Status {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	}
	return false
}

// TargetUUIDs parses the stored target list. Malformed entries are skipped;
// the list is written exclusively from validated uuids.
func (op *SyncOperation) TargetUUIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(op.TargetStoreIDs))
	for _, raw := range op.TargetStoreIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
