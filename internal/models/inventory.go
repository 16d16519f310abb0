// internal/models/inventory.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProductVariant is part of the canonical product payload carried on a
// unified inventory row.
type ProductVariant struct {
	Title             string  `json:"title"`
	SKU               string  `json:"sku"`
	Price             float64 `json:"price"`
	InventoryQuantity int     `json:"inventory_quantity"`
}

type ProductVariants []ProductVariant

func (v ProductVariants) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (v *ProductVariants) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	switch raw := value.(type) {
	case []byte:
		return json.Unmarshal(raw, v)
	case string:
		return json.Unmarshal([]byte(raw), v)
	}
	return nil
}

// MultiStoreInventory is one logical product spanning stores. TotalInventory
// equals the sum of active mapping local inventories after any successful
// aggregation update.
type MultiStoreInventory struct {
	BaseModel
	GroupID          uuid.UUID        `json:"group_id" gorm:"type:uuid;not null;index"`
	Title            string           `json:"title" gorm:"size:255;not null"`
	Handle           string           `json:"handle" gorm:"size:255;index"`
	Vendor           string           `json:"vendor" gorm:"size:255"`
	ProductType      string           `json:"product_type" gorm:"size:100"`
	Tags             pq.StringArray   `json:"tags" gorm:"type:text[]"`
	Variants         ProductVariants  `json:"variants" gorm:"type:jsonb"`
	TotalInventory   int              `json:"total_inventory" gorm:"default:0"`
	SyncStatus       EntitySyncStatus `json:"sync_status" gorm:"type:varchar(20);default:'pending';index"`
	LastAggregatedAt *time.Time       `json:"last_aggregated_at"`

	// Relationships
	Mappings []StoreInventoryMapping `json:"mappings,omitempty" gorm:"foreignKey:InventoryID"`
}

// StoreInventoryMapping links a unified product to one store's record of it.
type StoreInventoryMapping struct {
	BaseModel
	InventoryID       uuid.UUID        `json:"inventory_id" gorm:"type:uuid;not null;index:idx_inventory_mapping_store,unique"`
	StoreID           uuid.UUID        `json:"store_id" gorm:"type:uuid;not null;index:idx_inventory_mapping_store,unique"`
	ExternalProductID string           `json:"external_product_id" gorm:"size:64;index"`
	ExternalVariantID string           `json:"external_variant_id" gorm:"size:64"`
	LocalInventory    int              `json:"local_inventory" gorm:"default:0"`
	SyncStatus        EntitySyncStatus `json:"sync_status" gorm:"type:varchar(20);default:'pending'"`
	LastSyncedAt      *time.Time       `json:"last_synced_at"`
	IsActive          bool             `json:"is_active" gorm:"default:true"`

	// Relationships
	Store Store `json:"store,omitempty" gorm:"foreignKey:StoreID"`
}

// FirstVariantPrice approximates the product's unit price for valuation
// rollups.
func (inv *MultiStoreInventory) FirstVariantPrice() float64 {
	if len(inv.Variants) == 0 {
		return 0
	}
	return inv.Variants[0].Price
}
