// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// IDs are assigned client-side so the same models migrate on any dialect.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// Enums

type SyncMode string

const (
	SyncModeRealTime  SyncMode = "real_time"
	SyncModeBatch     SyncMode = "batch"
	SyncModeScheduled SyncMode = "scheduled"
)

type StoreSyncStatus string

const (
	StoreSyncStatusActive  StoreSyncStatus = "active"
	StoreSyncStatusPaused  StoreSyncStatus = "paused"
	StoreSyncStatusError   StoreSyncStatus = "error"
	StoreSyncStatusSyncing StoreSyncStatus = "syncing"
)

type RelationshipDirection string

const (
	DirectionPush          RelationshipDirection = "push"
	DirectionPull          RelationshipDirection = "pull"
	DirectionBidirectional RelationshipDirection = "bidirectional"
)

type AccessRole string

const (
	AccessRoleOwner   AccessRole = "owner"
	AccessRoleAdmin   AccessRole = "admin"
	AccessRoleManager AccessRole = "manager"
	AccessRoleViewer  AccessRole = "viewer"
)

type OperationType string

const (
	OperationTypeInventorySync OperationType = "inventory_sync"
	OperationTypeProductSync   OperationType = "product_sync"
	OperationTypeCustomerSync  OperationType = "customer_sync"
	OperationTypeFullSync      OperationType = "full_sync"
)

type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

type EntitySyncStatus string

const (
	EntitySyncStatusSynced     EntitySyncStatus = "synced"
	EntitySyncStatusPending    EntitySyncStatus = "pending"
	EntitySyncStatusConflicted EntitySyncStatus = "conflicted"
	EntitySyncStatusError      EntitySyncStatus = "error"
)

type ConflictType string

const (
	ConflictTypeInventoryMismatch ConflictType = "inventory_mismatch"
	ConflictTypePriceConflict     ConflictType = "price_conflict"
	ConflictTypeDataConflict      ConflictType = "data_conflict"
	ConflictTypeDuplicateProduct  ConflictType = "duplicate_product"
)

type ConflictStatus string

const (
	ConflictStatusPending  ConflictStatus = "pending"
	ConflictStatusResolved ConflictStatus = "resolved"
	ConflictStatusIgnored  ConflictStatus = "ignored"
)

type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

type ResolutionStrategy string

const (
	StrategyAutoMasterWins ResolutionStrategy = "auto_master_wins"
	StrategyAutoLatestWins ResolutionStrategy = "auto_latest_wins"
	StrategyAutoMerge      ResolutionStrategy = "auto_merge"
	StrategyManual         ResolutionStrategy = "manual"
)

type DuplicateAction string

const (
	DuplicateActionDelete        DuplicateAction = "delete_duplicate"
	DuplicateActionMergeVariants DuplicateAction = "merge_variants"
	DuplicateActionKeepBoth      DuplicateAction = "keep_both"
)
