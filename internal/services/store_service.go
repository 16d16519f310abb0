// internal/services/store_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/database"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

var (
	ErrGroupCapacityReached = errors.New("store group has reached its capacity limit")
	ErrStoreAlreadyGrouped  = errors.New("store already belongs to a group")
	ErrStoreNotInGroup      = errors.New("store does not belong to this group")
)

// StoreService owns store-group membership, master designation, store
// relationships and per-user access grants. Every other service resolves
// participating stores through it.
type StoreService struct {
	db      *gorm.DB
	clients shopify.ClientFactory
	cfg     config.SyncConfig
}

type CreateStoreGroupRequest struct {
	Name                    string                    `json:"name" validate:"required,min=3,max=255"`
	MaxStores               int                       `json:"max_stores" validate:"omitempty,min=2,max=100"`
	DefaultSyncMode         models.SyncMode           `json:"default_sync_mode" validate:"omitempty,oneof=real_time batch scheduled"`
	DefaultConflictStrategy models.ResolutionStrategy `json:"default_conflict_strategy" validate:"omitempty,oneof=auto_master_wins auto_latest_wins auto_merge manual"`
	SyncInventory           *bool                     `json:"sync_inventory,omitempty"`
	SyncCustomers           *bool                     `json:"sync_customers,omitempty"`
	SyncProducts            *bool                     `json:"sync_products,omitempty"`
}

type UpdateStoreGroupRequest struct {
	Name                    string                    `json:"name,omitempty" validate:"omitempty,min=3,max=255"`
	MaxStores               int                       `json:"max_stores,omitempty" validate:"omitempty,min=2,max=100"`
	DefaultSyncMode         models.SyncMode           `json:"default_sync_mode,omitempty" validate:"omitempty,oneof=real_time batch scheduled"`
	DefaultConflictStrategy models.ResolutionStrategy `json:"default_conflict_strategy,omitempty" validate:"omitempty,oneof=auto_master_wins auto_latest_wins auto_merge manual"`
}

type CreateRelationshipRequest struct {
	SourceStoreID uuid.UUID                    `json:"source_store_id" validate:"required"`
	TargetStoreID uuid.UUID                    `json:"target_store_id" validate:"required"`
	Direction     models.RelationshipDirection `json:"direction" validate:"omitempty,oneof=push pull bidirectional"`
	SyncInventory *bool                        `json:"sync_inventory,omitempty"`
	SyncProducts  *bool                        `json:"sync_products,omitempty"`
	SyncCustomers *bool                        `json:"sync_customers,omitempty"`
	SyncPrices    *bool                        `json:"sync_prices,omitempty"`
	BatchSize     int                          `json:"batch_size" validate:"omitempty,min=1,max=250"`
	ScheduleCron  string                       `json:"schedule_cron,omitempty"`
}

type ConnectStoreRequest struct {
	ShopDomain  string `json:"shop_domain" validate:"required,shop_domain"`
	AccessToken string `json:"access_token" validate:"required,min=10"`
	Name        string `json:"name,omitempty" validate:"omitempty,max=255"`
}

type GrantAccessRequest struct {
	StoreID     uuid.UUID         `json:"store_id" validate:"required"`
	UserID      uuid.UUID         `json:"user_id" validate:"required"`
	Role        models.AccessRole `json:"role" validate:"required,oneof=owner admin manager viewer"`
	Permissions []string          `json:"permissions,omitempty"`
}

// rolePermissions is the matrix a grant derives from when no explicit
// override is supplied.
var rolePermissions = map[models.AccessRole][]string{
	models.AccessRoleOwner:   {"stores:read", "stores:write", "stores:delete", "sync:initiate", "sync:cancel", "conflicts:resolve", "access:grant", "analytics:read"},
	models.AccessRoleAdmin:   {"stores:read", "stores:write", "sync:initiate", "sync:cancel", "conflicts:resolve", "analytics:read"},
	models.AccessRoleManager: {"stores:read", "sync:initiate", "conflicts:resolve", "analytics:read"},
	models.AccessRoleViewer:  {"stores:read", "analytics:read"},
}

func NewStoreService(db *gorm.DB, clients shopify.ClientFactory, cfg config.SyncConfig) *StoreService {
	return &StoreService{
		db:      db,
		clients: clients,
		cfg:     cfg,
	}
}

// relationshipBatchSize is the configured default for relationships created
// without an explicit batch size.
func (s *StoreService) relationshipBatchSize() int {
	if s.cfg.DefaultBatchSize > 0 {
		return s.cfg.DefaultBatchSize
	}
	return 50
}

func (s *StoreService) CreateStoreGroup(ownerID uuid.UUID, req *CreateStoreGroupRequest) (*models.StoreGroup, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	group := &models.StoreGroup{
		Name:          req.Name,
		OwnerID:       ownerID,
		MaxStores:     10,
		SyncInventory: true,
		SyncCustomers: true,
		SyncProducts:  true,
	}
	if req.MaxStores > 0 {
		group.MaxStores = req.MaxStores
	}
	if req.DefaultSyncMode != "" {
		group.DefaultSyncMode = req.DefaultSyncMode
	} else {
		group.DefaultSyncMode = models.SyncModeBatch
	}
	if req.DefaultConflictStrategy != "" {
		group.DefaultConflictStrategy = req.DefaultConflictStrategy
	} else {
		group.DefaultConflictStrategy = models.StrategyAutoMasterWins
	}
	if req.SyncInventory != nil {
		group.SyncInventory = *req.SyncInventory
	}
	if req.SyncCustomers != nil {
		group.SyncCustomers = *req.SyncCustomers
	}
	if req.SyncProducts != nil {
		group.SyncProducts = *req.SyncProducts
	}

	if err := s.db.Create(group).Error; err != nil {
		return nil, fmt.Errorf("failed to create store group: %w", err)
	}

	return group, nil
}

func (s *StoreService) UpdateStoreGroup(groupID uuid.UUID, req *UpdateStoreGroupRequest) (*models.StoreGroup, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var group models.StoreGroup
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("store group not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.MaxStores > 0 {
		// Shrinking below the current membership would violate the
		// capacity invariant retroactively.
		var count int64
		if err := s.db.Model(&models.Store{}).Where("group_id = ?", groupID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count group members: %w", err)
		}
		if int64(req.MaxStores) < count {
			return nil, fmt.Errorf("cannot set capacity %d below current membership %d", req.MaxStores, count)
		}
		updates["max_stores"] = req.MaxStores
	}
	if req.DefaultSyncMode != "" {
		updates["default_sync_mode"] = req.DefaultSyncMode
	}
	if req.DefaultConflictStrategy != "" {
		updates["default_conflict_strategy"] = req.DefaultConflictStrategy
	}

	if err := s.db.Model(&group).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update store group: %w", err)
	}

	return &group, nil
}

func (s *StoreService) GetStoreGroup(groupID uuid.UUID) (*models.StoreGroup, error) {
	var group models.StoreGroup
	if err := s.db.Preload("Stores").First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("store group not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &group, nil
}

// AddStoreToGroup enforces the capacity limit and, when asMaster is set, the
// unique-master invariant, inside one transaction. A master gaining
// membership auto-creates push relationships to every existing member.
func (s *StoreService) AddStoreToGroup(groupID, storeID uuid.UUID, asMaster bool) (*models.Store, error) {
	var store models.Store

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var group models.StoreGroup
		if err := tx.First(&group, groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("store group not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if err := tx.First(&store, storeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("store not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if store.GroupID != nil {
			return ErrStoreAlreadyGrouped
		}

		var memberCount int64
		if err := tx.Model(&models.Store{}).Where("group_id = ?", groupID).Count(&memberCount).Error; err != nil {
			return fmt.Errorf("failed to count group members: %w", err)
		}
		if memberCount >= int64(group.MaxStores) {
			return ErrGroupCapacityReached
		}

		var siblings []models.Store
		if err := tx.Where("group_id = ?", groupID).Find(&siblings).Error; err != nil {
			return fmt.Errorf("failed to load group members: %w", err)
		}

		if asMaster {
			// Clear any previous master in the same step.
			if err := tx.Model(&models.Store{}).Where("group_id = ?", groupID).
				Update("is_master", false).Error; err != nil {
				return fmt.Errorf("failed to clear master flags: %w", err)
			}
		}

		updates := map[string]interface{}{
			"group_id":  groupID,
			"is_master": asMaster,
		}
		if err := tx.Model(&store).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to add store to group: %w", err)
		}

		if asMaster {
			for _, sibling := range siblings {
				rel := &models.StoreRelationship{
					SourceStoreID: store.ID,
					TargetStoreID: sibling.ID,
					Direction:     models.DirectionPush,
					SyncInventory: group.SyncInventory,
					SyncProducts:  group.SyncProducts,
					SyncCustomers: group.SyncCustomers,
					BatchSize:     s.relationshipBatchSize(),
					IsActive:      true,
				}
				if err := tx.Create(rel).Error; err != nil {
					return fmt.Errorf("failed to create master relationship: %w", err)
				}
			}
		} else {
			// If the group already has a master, pair it with the newcomer.
			for _, sibling := range siblings {
				if sibling.IsMaster {
					rel := &models.StoreRelationship{
						SourceStoreID: sibling.ID,
						TargetStoreID: store.ID,
						Direction:     models.DirectionPush,
						SyncInventory: group.SyncInventory,
						SyncProducts:  group.SyncProducts,
						SyncCustomers: group.SyncCustomers,
						BatchSize:     s.relationshipBatchSize(),
						IsActive:      true,
					}
					if err := tx.Create(rel).Error; err != nil {
						return fmt.Errorf("failed to create master relationship: %w", err)
					}
					break
				}
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.db.First(&store, storeID)
	return &store, nil
}

// RemoveStoreFromGroup cascades deletion of every relationship referencing
// the store so no relationship ever points at an orphan.
func (s *StoreService) RemoveStoreFromGroup(groupID, storeID uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var store models.Store
		if err := tx.First(&store, storeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("store not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if store.GroupID == nil || *store.GroupID != groupID {
			return ErrStoreNotInGroup
		}

		if err := tx.Where("source_store_id = ? OR target_store_id = ?", storeID, storeID).
			Delete(&models.StoreRelationship{}).Error; err != nil {
			return fmt.Errorf("failed to delete store relationships: %w", err)
		}

		updates := map[string]interface{}{
			"group_id":  nil,
			"is_master": false,
		}
		if err := tx.Model(&store).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to remove store from group: %w", err)
		}

		return nil
	})
}

// SetMasterStore promotes one member and clears the flag on all siblings in
// the same transaction.
func (s *StoreService) SetMasterStore(groupID, storeID uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var store models.Store
		if err := tx.First(&store, storeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("store not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if store.GroupID == nil || *store.GroupID != groupID {
			return ErrStoreNotInGroup
		}

		if err := tx.Model(&models.Store{}).Where("group_id = ?", groupID).
			Update("is_master", false).Error; err != nil {
			return fmt.Errorf("failed to clear master flags: %w", err)
		}

		if err := tx.Model(&store).Update("is_master", true).Error; err != nil {
			return fmt.Errorf("failed to set master store: %w", err)
		}

		return nil
	})
}

func (s *StoreService) CreateStoreRelationship(req *CreateRelationshipRequest) (*models.StoreRelationship, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.SourceStoreID == req.TargetStoreID {
		return nil, errors.New("a store cannot have a relationship with itself")
	}

	var source, target models.Store
	if err := s.db.First(&source, req.SourceStoreID).Error; err != nil {
		return nil, errors.New("source store not found")
	}
	if err := s.db.First(&target, req.TargetStoreID).Error; err != nil {
		return nil, errors.New("target store not found")
	}

	rel := &models.StoreRelationship{
		SourceStoreID: req.SourceStoreID,
		TargetStoreID: req.TargetStoreID,
		Direction:     models.DirectionPush,
		SyncInventory: true,
		SyncProducts:  true,
		SyncCustomers: true,
		BatchSize:     s.relationshipBatchSize(),
		ScheduleCron:  req.ScheduleCron,
		IsActive:      true,
	}
	if req.Direction != "" {
		rel.Direction = req.Direction
	}
	if req.BatchSize > 0 {
		rel.BatchSize = req.BatchSize
	}
	if req.SyncInventory != nil {
		rel.SyncInventory = *req.SyncInventory
	}
	if req.SyncProducts != nil {
		rel.SyncProducts = *req.SyncProducts
	}
	if req.SyncCustomers != nil {
		rel.SyncCustomers = *req.SyncCustomers
	}
	if req.SyncPrices != nil {
		rel.SyncPrices = *req.SyncPrices
	}

	if err := s.db.Create(rel).Error; err != nil {
		return nil, fmt.Errorf("failed to create store relationship: %w", err)
	}

	return rel, nil
}

func (s *StoreService) ListStoreRelationships(storeID uuid.UUID) ([]models.StoreRelationship, error) {
	var relationships []models.StoreRelationship
	if err := s.db.Where("source_store_id = ? OR target_store_id = ?", storeID, storeID).
		Preload("SourceStore").Preload("TargetStore").
		Find(&relationships).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch store relationships: %w", err)
	}
	return relationships, nil
}

// GrantStoreAccess derives permissions from the role unless the caller
// supplies an explicit override. Granting again replaces the prior grant.
func (s *StoreService) GrantStoreAccess(grantedBy uuid.UUID, req *GrantAccessRequest) (*models.StoreAccess, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var store models.Store
	if err := s.db.First(&store, req.StoreID).Error; err != nil {
		return nil, errors.New("store not found")
	}

	permissions := req.Permissions
	if len(permissions) == 0 {
		permissions = rolePermissions[req.Role]
	}

	var access models.StoreAccess
	err := s.db.Where("store_id = ? AND user_id = ?", req.StoreID, req.UserID).First(&access).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		access = models.StoreAccess{
			StoreID:     req.StoreID,
			UserID:      req.UserID,
			Role:        req.Role,
			Permissions: permissions,
			GrantedBy:   grantedBy,
		}
		if err := s.db.Create(&access).Error; err != nil {
			return nil, fmt.Errorf("failed to grant store access: %w", err)
		}
		return &access, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	updates := map[string]interface{}{
		"role":        req.Role,
		"permissions": permissions,
		"granted_by":  grantedBy,
	}
	if err := s.db.Model(&access).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update store access: %w", err)
	}

	return &access, nil
}

func (s *StoreService) RevokeStoreAccess(storeID, userID uuid.UUID) error {
	result := s.db.Where("store_id = ? AND user_id = ?", storeID, userID).
		Delete(&models.StoreAccess{})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke store access: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("access grant not found")
	}
	return nil
}

func (s *StoreService) HasPermission(storeID, userID uuid.UUID, permission string) (bool, error) {
	var access models.StoreAccess
	err := s.db.Where("store_id = ? AND user_id = ?", storeID, userID).First(&access).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}

	for _, p := range access.Permissions {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// ValidateStoreConnection pings the store's commerce API and persists the
// resulting sync_status, whatever the caller intended to do with the answer.
func (s *StoreService) ValidateStoreConnection(ctx context.Context, storeID uuid.UUID) (bool, error) {
	var store models.Store
	if err := s.db.First(&store, storeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, errors.New("store not found")
		}
		return false, fmt.Errorf("database error: %w", err)
	}

	client := s.clients.ClientFor(&store)
	shop, err := client.GetShop(ctx)

	status := models.StoreSyncStatusActive
	if err != nil {
		status = models.StoreSyncStatusError
		logrus.WithFields(logrus.Fields{
			"store_id": storeID,
			"domain":   store.ShopDomain,
		}).WithError(err).Warn("Store connectivity check failed")
	}

	if dbErr := s.db.Model(&store).Update("sync_status", status).Error; dbErr != nil {
		return false, fmt.Errorf("failed to persist sync status: %w", dbErr)
	}

	if err != nil {
		return false, nil
	}

	logrus.WithFields(logrus.Fields{
		"store_id": storeID,
		"shop":     shop.Name,
	}).Info("Store connection validated")
	return true, nil
}

// SyncEnabledMembers returns the group's members eligible as sync targets.
func (s *StoreService) SyncEnabledMembers(groupID uuid.UUID) ([]models.Store, error) {
	var stores []models.Store
	if err := s.db.Where("group_id = ? AND sync_enabled = ?", groupID, true).
		Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	return stores, nil
}

// MasterStore returns the group's master, or nil when no store holds the
// flag.
func (s *StoreService) MasterStore(groupID uuid.UUID) (*models.Store, error) {
	var store models.Store
	err := s.db.Where("group_id = ? AND is_master = ?", groupID, true).First(&store).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &store, nil
}

// ConnectStore registers a store after verifying the credentials against the
// commerce API. The caller becomes the owner and gets a full access grant.
func (s *StoreService) ConnectStore(ctx context.Context, ownerID uuid.UUID, req *ConnectStoreRequest) (*models.Store, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var existing models.Store
	if err := s.db.Where("shop_domain = ?", req.ShopDomain).First(&existing).Error; err == nil {
		return nil, errors.New("store is already connected")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	store := &models.Store{
		ShopDomain:  req.ShopDomain,
		AccessToken: req.AccessToken,
		Name:        req.Name,
		OwnerID:     ownerID,
		SyncEnabled: true,
		SyncStatus:  models.StoreSyncStatusActive,
	}

	shop, err := s.clients.ClientFor(store).GetShop(ctx)
	if err != nil {
		return nil, fmt.Errorf("store credentials rejected: %w", err)
	}
	if store.Name == "" {
		store.Name = shop.Name
	}

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(store).Error; err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		access := &models.StoreAccess{
			StoreID:     store.ID,
			UserID:      ownerID,
			Role:        models.AccessRoleOwner,
			Permissions: rolePermissions[models.AccessRoleOwner],
			GrantedBy:   ownerID,
		}
		if err := tx.Create(access).Error; err != nil {
			return fmt.Errorf("failed to create owner access: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"store_id": store.ID,
		"domain":   store.ShopDomain,
	}).Info("Store connected")

	return store, nil
}

func (s *StoreService) GetStore(storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := s.db.Preload("Group").First(&store, storeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("store not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &store, nil
}

// ListStores returns the stores the user can see, owned or granted.
func (s *StoreService) ListStores(userID uuid.UUID, params utils.PaginationParams) ([]models.Store, int64, error) {
	query := s.db.Model(&models.Store{}).
		Where("owner_id = ? OR id IN (?)", userID,
			s.db.Model(&models.StoreAccess{}).Select("store_id").Where("user_id = ?", userID))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}

	var stores []models.Store
	sorted := utils.ApplySort(query, params, []string{"created_at", "name", "shop_domain", "last_sync_at"})
	if err := utils.ApplyPagination(sorted, params).Find(&stores).Error; err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}
	return stores, total, nil
}

// TouchLastSync stamps a store after a successful sync pass.
func (s *StoreService) TouchLastSync(storeID uuid.UUID, at time.Time) {
	s.db.Model(&models.Store{}).Where("id = ?", storeID).Update("last_sync_at", at)
}
