// internal/models/customer.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// UnifiedCustomer is one logical customer keyed by email within a group.
// Created the first time an email is seen in any member store's customer
// feed; never deleted automatically.
type UnifiedCustomer struct {
	BaseModel
	GroupID     uuid.UUID  `json:"group_id" gorm:"type:uuid;not null;index:idx_unified_customer_email,unique"`
	Email       string     `json:"email" gorm:"size:255;not null;index:idx_unified_customer_email,unique"`
	FirstName   string     `json:"first_name" gorm:"size:100"`
	LastName    string     `json:"last_name" gorm:"size:100"`
	TotalSpent  float64    `json:"total_spent" gorm:"type:decimal(12,2);default:0"`
	TotalOrders int        `json:"total_orders" gorm:"default:0"`
	LastSeenAt  *time.Time `json:"last_seen_at"`

	// Relationships
	Mappings []CustomerStoreMapping `json:"mappings,omitempty" gorm:"foreignKey:CustomerID"`
}

// CustomerStoreMapping links a unified customer to one store's record of
// them, with the store-local totals.
type CustomerStoreMapping struct {
	BaseModel
	CustomerID         uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;index:idx_customer_mapping_store,unique"`
	StoreID            uuid.UUID `json:"store_id" gorm:"type:uuid;not null;index:idx_customer_mapping_store,unique"`
	ExternalCustomerID string    `json:"external_customer_id" gorm:"size:64;index"`
	LocalTotalSpent    float64   `json:"local_total_spent" gorm:"type:decimal(12,2);default:0"`
	LocalOrderCount    int       `json:"local_order_count" gorm:"default:0"`

	// Relationships
	Store Store `json:"store,omitempty" gorm:"foreignKey:StoreID"`
}
