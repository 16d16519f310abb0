// internal/models/store.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StoreGroup is a named collection of stores managed together by one account.
type StoreGroup struct {
	BaseModel
	Name                    string             `json:"name" gorm:"size:255;not null"`
	OwnerID                 uuid.UUID          `json:"owner_id" gorm:"type:uuid;not null;index"`
	MaxStores               int                `json:"max_stores" gorm:"default:10"`
	DefaultSyncMode         SyncMode           `json:"default_sync_mode" gorm:"type:varchar(20);default:'batch'"`
	DefaultConflictStrategy ResolutionStrategy `json:"default_conflict_strategy" gorm:"type:varchar(30);default:'auto_master_wins'"`
	SyncInventory           bool               `json:"sync_inventory" gorm:"default:true"`
	SyncCustomers           bool               `json:"sync_customers" gorm:"default:true"`
	SyncProducts            bool               `json:"sync_products" gorm:"default:true"`

	// Relationships
	Stores []Store `json:"stores,omitempty" gorm:"foreignKey:GroupID"`
}

// Store is a connected storefront. At most one store per group carries the
// master flag.
type Store struct {
	BaseModel
	ShopDomain  string          `json:"shop_domain" gorm:"uniqueIndex;size:255;not null"`
	AccessToken string          `json:"-" gorm:"size:255;not null"`
	Name        string          `json:"name" gorm:"size:255"`
	OwnerID     uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	GroupID     *uuid.UUID      `json:"group_id" gorm:"type:uuid;index"`
	IsMaster    bool            `json:"is_master" gorm:"default:false"`
	SyncEnabled bool            `json:"sync_enabled" gorm:"default:true"`
	SyncStatus  StoreSyncStatus `json:"sync_status" gorm:"type:varchar(20);default:'active';index"`
	LastSyncAt  *time.Time      `json:"last_sync_at"`

	// Relationships
	Group *StoreGroup `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

// StoreRelationship is a sync pairing between two stores with per-entity
// toggles. Deleted whenever either endpoint leaves its group.
type StoreRelationship struct {
	BaseModel
	SourceStoreID uuid.UUID             `json:"source_store_id" gorm:"type:uuid;not null;index"`
	TargetStoreID uuid.UUID             `json:"target_store_id" gorm:"type:uuid;not null;index"`
	Direction     RelationshipDirection `json:"direction" gorm:"type:varchar(20);default:'push'"`
	SyncInventory bool                  `json:"sync_inventory" gorm:"default:true"`
	SyncProducts  bool                  `json:"sync_products" gorm:"default:true"`
	SyncCustomers bool                  `json:"sync_customers" gorm:"default:true"`
	SyncPrices    bool                  `json:"sync_prices" gorm:"default:false"`
	BatchSize     int                   `json:"batch_size" gorm:"default:50"`
	ScheduleCron  string                `json:"schedule_cron" gorm:"size:100"`
	IsActive      bool                  `json:"is_active" gorm:"default:true"`

	// Relationships
	SourceStore Store `json:"source_store,omitempty" gorm:"foreignKey:SourceStoreID"`
	TargetStore Store `json:"target_store,omitempty" gorm:"foreignKey:TargetStoreID"`
}

// StoreAccess grants one user a role on one store. Permissions derive from
// the role unless explicitly overridden at grant time.
type StoreAccess struct {
	BaseModel
	StoreID     uuid.UUID      `json:"store_id" gorm:"type:uuid;not null;index:idx_store_access_store_user,unique"`
	UserID      uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index:idx_store_access_store_user,unique"`
	Role        AccessRole     `json:"role" gorm:"type:varchar(20);not null"`
	Permissions pq.StringArray `json:"permissions" gorm:"type:text[]"`
	GrantedBy   uuid.UUID      `json:"granted_by" gorm:"type:uuid"`

	// Relationships
	Store Store `json:"store,omitempty" gorm:"foreignKey:StoreID"`
	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
