// internal/services/aggregator_service.go
package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/database"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

const (
	titleMatchWeight  = 0.6
	skuMatchWeight    = 0.4
	handleMatchWeight = 0.3

	// A field only counts as "matched" above this per-field similarity.
	fieldMatchCutoff = 0.8

	DefaultMatchThreshold = 0.8
)

// AggregatorService maintains the unified inventory and customer tables and
// provides fuzzy product matching across stores that share no identifier.
type AggregatorService struct {
	db *gorm.DB
}

type StoreInventoryInput struct {
	StoreID           uuid.UUID `json:"store_id" validate:"required"`
	ExternalProductID string    `json:"external_product_id" validate:"required"`
	ExternalVariantID string    `json:"external_variant_id,omitempty"`
	LocalInventory    int       `json:"local_inventory" validate:"min=0"`
}

type CreateUnifiedInventoryRequest struct {
	GroupID     uuid.UUID              `json:"group_id" validate:"required"`
	Title       string                 `json:"title" validate:"required,min=1,max=255"`
	Handle      string                 `json:"handle,omitempty"`
	Vendor      string                 `json:"vendor,omitempty"`
	ProductType string                 `json:"product_type,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Variants    models.ProductVariants `json:"variants,omitempty"`
	Mappings    []StoreInventoryInput  `json:"mappings" validate:"required,min=1,dive"`
}

// ProductMatch is one fuzzy-match candidate, ranked by similarity.
type ProductMatch struct {
	Inventory     models.MultiStoreInventory `json:"inventory"`
	Similarity    float64                    `json:"similarity"`
	MatchedFields []string                   `json:"matched_fields"`
}

type GroupAnalytics struct {
	GroupID            uuid.UUID `json:"group_id"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	StoreCount         int64     `json:"store_count"`
	ActiveStoreCount   int64     `json:"active_store_count"`
	UnifiedProducts    int64     `json:"unified_products"`
	TotalInventory     int64     `json:"total_inventory"`
	InventoryValuation float64   `json:"inventory_valuation"`
	UnifiedCustomers   int64     `json:"unified_customers"`
	SyncOperations     int64     `json:"sync_operations"`
	SyncSuccessRate    float64   `json:"sync_success_rate"`
	AvgSyncDurationSec float64   `json:"avg_sync_duration_sec"`
	DataFreshnessHours float64   `json:"data_freshness_hours"`
	PendingConflicts   int64     `json:"pending_conflicts"`
}

func NewAggregatorService(db *gorm.DB) *AggregatorService {
	return &AggregatorService{db: db}
}

// CreateUnifiedInventory creates the parent row and its mappings as an
// all-or-nothing step: if any mapping insert fails the parent is compensated
// away and the error returned.
func (s *AggregatorService) CreateUnifiedInventory(req *CreateUnifiedInventoryRequest) (*models.MultiStoreInventory, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	handle := req.Handle
	if handle == "" {
		handle = utils.GenerateHandle(req.Title)
	}

	inventory := &models.MultiStoreInventory{
		GroupID:     req.GroupID,
		Title:       req.Title,
		Handle:      handle,
		Vendor:      req.Vendor,
		ProductType: req.ProductType,
		Tags:        req.Tags,
		Variants:    req.Variants,
		SyncStatus:  models.EntitySyncStatusPending,
	}

	if err := s.db.Create(inventory).Error; err != nil {
		return nil, fmt.Errorf("failed to create unified inventory: %w", err)
	}

	total := 0
	for _, input := range req.Mappings {
		mapping := &models.StoreInventoryMapping{
			InventoryID:       inventory.ID,
			StoreID:           input.StoreID,
			ExternalProductID: input.ExternalProductID,
			ExternalVariantID: input.ExternalVariantID,
			LocalInventory:    input.LocalInventory,
			SyncStatus:        models.EntitySyncStatusSynced,
			IsActive:          true,
		}
		if err := s.db.Create(mapping).Error; err != nil {
			s.compensateCreate(inventory.ID)
			return nil, fmt.Errorf("failed to create store mapping: %w", err)
		}
		total += input.LocalInventory
	}

	now := time.Now()
	updates := map[string]interface{}{
		"total_inventory":    total,
		"sync_status":        models.EntitySyncStatusSynced,
		"last_aggregated_at": now,
	}
	if err := s.db.Model(inventory).Updates(updates).Error; err != nil {
		s.compensateCreate(inventory.ID)
		return nil, fmt.Errorf("failed to finalize unified inventory: %w", err)
	}

	s.db.Preload("Mappings").First(inventory, inventory.ID)
	return inventory, nil
}

// compensateCreate removes a half-created unified entity and any mappings
// that made it in before the failure.
func (s *AggregatorService) compensateCreate(inventoryID uuid.UUID) {
	if err := s.db.Unscoped().Where("inventory_id = ?", inventoryID).
		Delete(&models.StoreInventoryMapping{}).Error; err != nil {
		logrus.WithField("inventory_id", inventoryID).WithError(err).
			Error("Failed to compensate mapping rows")
	}
	if err := s.db.Unscoped().Delete(&models.MultiStoreInventory{}, inventoryID).Error; err != nil {
		logrus.WithField("inventory_id", inventoryID).WithError(err).
			Error("Failed to compensate unified inventory row")
	}
}

func (s *AggregatorService) GetUnifiedInventory(inventoryID uuid.UUID) (*models.MultiStoreInventory, error) {
	var inventory models.MultiStoreInventory
	if err := s.db.Preload("Mappings").First(&inventory, inventoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("unified inventory not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &inventory, nil
}

// ApplyInventoryDelta adjusts one store mapping and the parent aggregate in
// the same transaction. The total moves by a relative delta rather than a
// read-modify-write so concurrent syncs touching the same product do not
// lose updates.
func (s *AggregatorService) ApplyInventoryDelta(inventoryID, storeID uuid.UUID, delta int) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var mapping models.StoreInventoryMapping
		if err := tx.Where("inventory_id = ? AND store_id = ?", inventoryID, storeID).
			First(&mapping).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("store mapping not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&mapping).Updates(map[string]interface{}{
			"local_inventory": gorm.Expr("local_inventory + ?", delta),
			"last_synced_at":  now,
			"sync_status":     models.EntitySyncStatusSynced,
		}).Error; err != nil {
			return fmt.Errorf("failed to update store mapping: %w", err)
		}

		if err := tx.Model(&models.MultiStoreInventory{}).Where("id = ?", inventoryID).
			Updates(map[string]interface{}{
				"total_inventory":    gorm.Expr("total_inventory + ?", delta),
				"last_aggregated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update aggregate total: %w", err)
		}

		return nil
	})
}

// RecordStoreInventory upserts a mapping to an absolute local quantity and
// folds the difference into the parent total as a delta.
func (s *AggregatorService) RecordStoreInventory(inventoryID, storeID uuid.UUID, externalProductID, externalVariantID string, quantity int) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		now := time.Now()

		var mapping models.StoreInventoryMapping
		err := tx.Where("inventory_id = ? AND store_id = ?", inventoryID, storeID).
			First(&mapping).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			mapping = models.StoreInventoryMapping{
				InventoryID:       inventoryID,
				StoreID:           storeID,
				ExternalProductID: externalProductID,
				ExternalVariantID: externalVariantID,
				LocalInventory:    quantity,
				SyncStatus:        models.EntitySyncStatusSynced,
				LastSyncedAt:      &now,
				IsActive:          true,
			}
			if err := tx.Create(&mapping).Error; err != nil {
				return fmt.Errorf("failed to create store mapping: %w", err)
			}
			return s.bumpTotal(tx, inventoryID, quantity, now)
		}
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		delta := quantity - mapping.LocalInventory
		if err := tx.Model(&mapping).Updates(map[string]interface{}{
			"local_inventory":     quantity,
			"external_product_id": externalProductID,
			"external_variant_id": externalVariantID,
			"sync_status":         models.EntitySyncStatusSynced,
			"last_synced_at":      now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update store mapping: %w", err)
		}

		return s.bumpTotal(tx, inventoryID, delta, now)
	})
}

func (s *AggregatorService) bumpTotal(tx *gorm.DB, inventoryID uuid.UUID, delta int, at time.Time) error {
	if err := tx.Model(&models.MultiStoreInventory{}).Where("id = ?", inventoryID).
		Updates(map[string]interface{}{
			"total_inventory":    gorm.Expr("total_inventory + ?", delta),
			"last_aggregated_at": at,
		}).Error; err != nil {
		return fmt.Errorf("failed to update aggregate total: %w", err)
	}
	return nil
}

// FindOrCreateUnifiedInventory maps a store product onto an existing unified
// entity via exact handle match then fuzzy matching, creating a fresh entity
// when nothing clears the threshold.
func (s *AggregatorService) FindOrCreateUnifiedInventory(groupID uuid.UUID, storeID uuid.UUID, product *shopify.Product, threshold float64) (*models.MultiStoreInventory, error) {
	handle := product.Handle
	if handle == "" {
		handle = utils.GenerateHandle(product.Title)
	}

	var existing models.MultiStoreInventory
	err := s.db.Where("group_id = ? AND handle = ?", groupID, handle).First(&existing).Error
	if err == nil {
		return s.attachStoreProduct(&existing, storeID, product)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	sku := ""
	if v := product.FirstVariant(); v != nil {
		sku = v.SKU
	}
	matches, err := s.FindSimilarProducts(groupID, product.Title, sku, threshold)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return s.attachStoreProduct(&matches[0].Inventory, storeID, product)
	}

	variants := make(models.ProductVariants, 0, len(product.Variants))
	for _, v := range product.Variants {
		variants = append(variants, models.ProductVariant{
			Title:             v.Title,
			SKU:               v.SKU,
			Price:             v.PriceValue(),
			InventoryQuantity: v.InventoryQuantity,
		})
	}

	externalVariantID := ""
	if v := product.FirstVariant(); v != nil {
		externalVariantID = fmt.Sprintf("%d", v.ID)
	}

	return s.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID:     groupID,
		Title:       product.Title,
		Handle:      handle,
		Vendor:      product.Vendor,
		ProductType: product.ProductType,
		Tags:        product.TagList(),
		Variants:    variants,
		Mappings: []StoreInventoryInput{{
			StoreID:           storeID,
			ExternalProductID: fmt.Sprintf("%d", product.ID),
			ExternalVariantID: externalVariantID,
			LocalInventory:    product.TotalInventory(),
		}},
	})
}

func (s *AggregatorService) attachStoreProduct(inventory *models.MultiStoreInventory, storeID uuid.UUID, product *shopify.Product) (*models.MultiStoreInventory, error) {
	externalVariantID := ""
	if v := product.FirstVariant(); v != nil {
		externalVariantID = fmt.Sprintf("%d", v.ID)
	}
	if err := s.RecordStoreInventory(inventory.ID, storeID,
		fmt.Sprintf("%d", product.ID), externalVariantID, product.TotalInventory()); err != nil {
		return nil, err
	}
	return s.GetUnifiedInventory(inventory.ID)
}

// FindSimilarProducts ranks the group's unified products by weighted
// similarity against the candidate title/SKU. A match requires the combined
// score to clear the threshold and at least one contributing field.
func (s *AggregatorService) FindSimilarProducts(groupID uuid.UUID, title, sku string, threshold float64) ([]ProductMatch, error) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	var candidates []models.MultiStoreInventory
	if err := s.db.Where("group_id = ?", groupID).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load group products: %w", err)
	}

	handle := utils.GenerateHandle(title)

	matches := make([]ProductMatch, 0)
	for _, candidate := range candidates {
		score, fields := ScoreProductSimilarity(title, sku, handle, candidate.Title, candidate.Handle, candidate.Variants)
		if score > threshold && len(fields) > 0 {
			matches = append(matches, ProductMatch{
				Inventory:     candidate,
				Similarity:    score,
				MatchedFields: fields,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	return matches, nil
}

// ScoreProductSimilarity combines title similarity (weight 0.6), exact SKU
// match on any variant (0.4) and handle similarity (0.3), normalized by the
// applicable weight so an exact duplicate scores 1.0.
func ScoreProductSimilarity(title, sku, handle, candidateTitle, candidateHandle string, candidateVariants models.ProductVariants) (float64, []string) {
	var score, weightSum float64
	var fields []string

	titleSim := utils.StringSimilarity(title, candidateTitle)
	score += titleSim * titleMatchWeight
	weightSum += titleMatchWeight
	if titleSim >= fieldMatchCutoff {
		fields = append(fields, "title")
	}

	if sku != "" {
		weightSum += skuMatchWeight
		for _, v := range candidateVariants {
			if v.SKU != "" && v.SKU == sku {
				score += skuMatchWeight
				fields = append(fields, "sku")
				break
			}
		}
	}

	if handle != "" && candidateHandle != "" {
		handleSim := utils.StringSimilarity(handle, candidateHandle)
		score += handleSim * handleMatchWeight
		weightSum += handleMatchWeight
		if handleSim >= fieldMatchCutoff {
			fields = append(fields, "handle")
		}
	}

	if weightSum == 0 {
		return 0, nil
	}
	return score / weightSum, fields
}

// FindCustomerByEmail returns the unified customer with store mappings
// loaded.
func (s *AggregatorService) FindCustomerByEmail(groupID uuid.UUID, email string) (*models.UnifiedCustomer, error) {
	var customer models.UnifiedCustomer
	err := s.db.Where("group_id = ? AND email = ?", groupID, email).
		Preload("Mappings").First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("customer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &customer, nil
}

// FindOrCreateUnifiedCustomer ingests one store customer record: the unified
// row is created on first sight of the email and the per-store mapping is
// upserted with local totals.
func (s *AggregatorService) FindOrCreateUnifiedCustomer(groupID, storeID uuid.UUID, customer *shopify.Customer) (*models.UnifiedCustomer, error) {
	if customer.Email == "" {
		return nil, errors.New("customer record has no email")
	}

	now := time.Now()
	var unified models.UnifiedCustomer

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		err := tx.Where("group_id = ? AND email = ?", groupID, customer.Email).
			First(&unified).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			unified = models.UnifiedCustomer{
				GroupID:    groupID,
				Email:      customer.Email,
				FirstName:  customer.FirstName,
				LastName:   customer.LastName,
				LastSeenAt: &now,
			}
			if err := tx.Create(&unified).Error; err != nil {
				return fmt.Errorf("failed to create unified customer: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		var mapping models.CustomerStoreMapping
		err = tx.Where("customer_id = ? AND store_id = ?", unified.ID, storeID).
			First(&mapping).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			mapping = models.CustomerStoreMapping{
				CustomerID:         unified.ID,
				StoreID:            storeID,
				ExternalCustomerID: fmt.Sprintf("%d", customer.ID),
				LocalTotalSpent:    customer.TotalSpentValue(),
				LocalOrderCount:    customer.OrdersCount,
			}
			if err := tx.Create(&mapping).Error; err != nil {
				return fmt.Errorf("failed to create customer mapping: %w", err)
			}
			if err := tx.Model(&unified).Updates(map[string]interface{}{
				"total_spent":  gorm.Expr("total_spent + ?", mapping.LocalTotalSpent),
				"total_orders": gorm.Expr("total_orders + ?", mapping.LocalOrderCount),
				"last_seen_at": now,
			}).Error; err != nil {
				return fmt.Errorf("failed to update customer totals: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		spentDelta := customer.TotalSpentValue() - mapping.LocalTotalSpent
		orderDelta := customer.OrdersCount - mapping.LocalOrderCount
		if err := tx.Model(&mapping).Updates(map[string]interface{}{
			"local_total_spent": customer.TotalSpentValue(),
			"local_order_count": customer.OrdersCount,
		}).Error; err != nil {
			return fmt.Errorf("failed to update customer mapping: %w", err)
		}
		if err := tx.Model(&unified).Updates(map[string]interface{}{
			"total_spent":  gorm.Expr("total_spent + ?", spentDelta),
			"total_orders": gorm.Expr("total_orders + ?", orderDelta),
			"last_seen_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update customer totals: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return s.FindCustomerByEmail(groupID, customer.Email)
}

// GenerateMultiStoreAnalytics computes group-level rollups over the window.
func (s *AggregatorService) GenerateMultiStoreAnalytics(groupID uuid.UUID, start, end time.Time) (*GroupAnalytics, error) {
	var group models.StoreGroup
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("store group not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	analytics := &GroupAnalytics{
		GroupID:     groupID,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	s.db.Model(&models.Store{}).Where("group_id = ?", groupID).Count(&analytics.StoreCount)
	s.db.Model(&models.Store{}).Where("group_id = ? AND sync_status = ?", groupID, models.StoreSyncStatusActive).
		Count(&analytics.ActiveStoreCount)
	s.db.Model(&models.UnifiedCustomer{}).Where("group_id = ?", groupID).Count(&analytics.UnifiedCustomers)
	s.db.Model(&models.ConflictResolution{}).Where("group_id = ? AND status = ?", groupID, models.ConflictStatusPending).
		Count(&analytics.PendingConflicts)

	var products []models.MultiStoreInventory
	if err := s.db.Where("group_id = ?", groupID).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load unified products: %w", err)
	}
	analytics.UnifiedProducts = int64(len(products))

	now := time.Now()
	var freshnessSum float64
	var freshnessCount int
	for _, p := range products {
		analytics.TotalInventory += int64(p.TotalInventory)
		analytics.InventoryValuation += float64(p.TotalInventory) * p.FirstVariantPrice()
		if p.LastAggregatedAt != nil {
			freshnessSum += now.Sub(*p.LastAggregatedAt).Hours()
			freshnessCount++
		}
	}
	if freshnessCount > 0 {
		analytics.DataFreshnessHours = freshnessSum / float64(freshnessCount)
	}

	var operations []models.SyncOperation
	if err := s.db.Where("group_id = ? AND created_at BETWEEN ? AND ?", groupID, start, end).
		Find(&operations).Error; err != nil {
		return nil, fmt.Errorf("failed to load sync operations: %w", err)
	}

	analytics.SyncOperations = int64(len(operations))
	var completed int64
	var durationSum float64
	var durationCount int
	for _, op := range operations {
		if op.Status == models.OperationStatusCompleted {
			completed++
		}
		if op.StartedAt != nil && op.CompletedAt != nil {
			durationSum += op.CompletedAt.Sub(*op.StartedAt).Seconds()
			durationCount++
		}
	}
	if len(operations) > 0 {
		analytics.SyncSuccessRate = float64(completed) / float64(len(operations))
	}
	if durationCount > 0 {
		analytics.AvgSyncDurationSec = durationSum / float64(durationCount)
	}

	return analytics, nil
}
