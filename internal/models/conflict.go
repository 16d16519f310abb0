// internal/models/conflict.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InventoryConflictDetails carries the fields relevant to an
// inventory_mismatch conflict.
type InventoryConflictDetails struct {
	ExternalProductID string `json:"external_product_id"`
	SourceProductID   int64  `json:"source_product_id,omitempty"`
	SourceVariantID   int64  `json:"source_variant_id"`
	TargetVariantID   int64  `json:"target_variant_id"`
	SourceQuantity    int    `json:"source_quantity"`
	TargetQuantity    int    `json:"target_quantity"`
	Reason            string `json:"reason,omitempty"`
}

// PriceConflictDetails carries the fields relevant to a price_conflict.
type PriceConflictDetails struct {
	ExternalProductID string  `json:"external_product_id"`
	SourceProductID   int64   `json:"source_product_id,omitempty"`
	SourceVariantID   int64   `json:"source_variant_id"`
	TargetVariantID   int64   `json:"target_variant_id"`
	SourcePrice       float64 `json:"source_price"`
	TargetPrice       float64 `json:"target_price"`
}

// DataConflictDetails carries a single diverging product field.
type DataConflictDetails struct {
	SourceProductID int64  `json:"source_product_id"`
	TargetProductID int64  `json:"target_product_id"`
	Field           string `json:"field"`
	SourceValue     string `json:"source_value"`
	TargetValue     string `json:"target_value"`
}

// DuplicateConflictDetails identifies two records believed to be the same
// product inside one store.
type DuplicateConflictDetails struct {
	ProductID          int64  `json:"product_id"`
	DuplicateProductID int64  `json:"duplicate_product_id"`
	Title              string `json:"title"`
}

// ConflictDetails is a tagged union: exactly one branch is populated,
// selected by the owning conflict's Type.
type ConflictDetails struct {
	Inventory *InventoryConflictDetails `json:"inventory,omitempty"`
	Price     *PriceConflictDetails     `json:"price,omitempty"`
	Data      *DataConflictDetails      `json:"data,omitempty"`
	Duplicate *DuplicateConflictDetails `json:"duplicate,omitempty"`
}

func (d ConflictDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ConflictDetails) Scan(value interface{}) error {
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

// ConflictResolution records one detected disagreement between two stores.
// State machine: pending -> resolved | ignored, both terminal. Resolving a
// non-pending conflict is rejected, not a no-op.
type ConflictResolution struct {
	BaseModel
	GroupID        uuid.UUID          `json:"group_id" gorm:"type:uuid;not null;index"`
	OperationID    *uuid.UUID         `json:"operation_id" gorm:"type:uuid;index"`
	Type           ConflictType       `json:"type" gorm:"type:varchar(30);not null;index"`
	SourceStoreID  uuid.UUID          `json:"source_store_id" gorm:"type:uuid;not null"`
	TargetStoreID  uuid.UUID          `json:"target_store_id" gorm:"type:uuid;not null"`
	Details        ConflictDetails    `json:"details" gorm:"type:jsonb"`
	Severity       ConflictSeverity   `json:"severity" gorm:"type:varchar(10);default:'low'"`
	Status         ConflictStatus     `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Strategy       ResolutionStrategy `json:"strategy,omitempty" gorm:"type:varchar(30)"`
	ResolvedBy     string             `json:"resolved_by,omitempty" gorm:"size:100"`
	ResolvedAt     *time.Time         `json:"resolved_at"`
	ResolutionData JSONB              `json:"resolution_data,omitempty" gorm:"type:jsonb"`

	// Relationships
	SourceStore Store `json:"source_store,omitempty" gorm:"foreignKey:SourceStoreID"`
	TargetStore Store `json:"target_store,omitempty" gorm:"foreignKey:TargetStoreID"`
}
