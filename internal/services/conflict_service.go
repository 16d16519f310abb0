// internal/services/conflict_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

var ErrConflictNotPending = errors.New("conflict is not pending")

// RecencyPolicy decides which store holds the fresher data for a latest_wins
// resolution.
type RecencyPolicy interface {
	Winner(ctx context.Context, conflict *models.ConflictResolution, source, target *models.Store) (uuid.UUID, error)
}

// ConflictService detects disagreements between stores and applies resolution
// strategies against the commerce APIs.
type ConflictService struct {
	db      *gorm.DB
	stores  *StoreService
	clients shopify.ClientFactory
	recency RecencyPolicy
	cfg     config.SyncConfig
}

type ResolveConflictRequest struct {
	Strategy        models.ResolutionStrategy `json:"strategy" validate:"required,oneof=auto_master_wins auto_latest_wins auto_merge manual"`
	ResolvedBy      string                    `json:"resolved_by" validate:"required,max=100"`
	ResolutionData  models.JSONB              `json:"resolution_data,omitempty"`
	DuplicateAction models.DuplicateAction    `json:"duplicate_action,omitempty" validate:"omitempty,oneof=delete_duplicate merge_variants keep_both"`
}

type ConflictFilter struct {
	GroupID uuid.UUID
	Status  models.ConflictStatus
	Type    models.ConflictType
}

type BatchResolveResult struct {
	Resolved []uuid.UUID          `json:"resolved"`
	Failed   map[uuid.UUID]string `json:"failed"`
}

func NewConflictService(db *gorm.DB, stores *StoreService, clients shopify.ClientFactory, recency RecencyPolicy, cfg config.SyncConfig) *ConflictService {
	if recency == nil {
		recency = &updatedAtRecencyPolicy{clients: clients}
	}
	return &ConflictService{
		db:      db,
		stores:  stores,
		clients: clients,
		recency: recency,
		cfg:     cfg,
	}
}

// DetectConflict records a disagreement unless an equivalent pending conflict
// already exists for the same store pair and subject. The bool reports
// whether a new conflict row was created.
func (s *ConflictService) DetectConflict(operationID *uuid.UUID, groupID uuid.UUID, conflictType models.ConflictType, sourceStoreID, targetStoreID uuid.UUID, details models.ConflictDetails, severity models.ConflictSeverity) (*models.ConflictResolution, bool, error) {
	var open []models.ConflictResolution
	if err := s.db.Where(
		"group_id = ? AND type = ? AND source_store_id = ? AND target_store_id = ? AND status = ?",
		groupID, conflictType, sourceStoreID, targetStoreID, models.ConflictStatusPending,
	).Find(&open).Error; err != nil {
		return nil, false, fmt.Errorf("database error: %w", err)
	}

	key := conflictSubjectKey(conflictType, details)
	for i := range open {
		if conflictSubjectKey(conflictType, open[i].Details) == key {
			return &open[i], false, nil
		}
	}

	conflict := &models.ConflictResolution{
		GroupID:       groupID,
		OperationID:   operationID,
		Type:          conflictType,
		SourceStoreID: sourceStoreID,
		TargetStoreID: targetStoreID,
		Details:       details,
		Severity:      severity,
		Status:        models.ConflictStatusPending,
	}
	if err := s.db.Create(conflict).Error; err != nil {
		return nil, false, fmt.Errorf("failed to record conflict: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"conflict_id": conflict.ID,
		"group_id":    groupID,
		"type":        conflictType,
		"severity":    severity,
	}).Info("Conflict detected")

	return conflict, true, nil
}

// conflictSubjectKey identifies what a conflict is about, independent of the
// observed values, so repeated scans do not pile up duplicates.
func conflictSubjectKey(conflictType models.ConflictType, details models.ConflictDetails) string {
	switch conflictType {
	case models.ConflictTypeInventoryMismatch:
		if details.Inventory != nil {
			return "inv:" + details.Inventory.ExternalProductID
		}
	case models.ConflictTypePriceConflict:
		if details.Price != nil {
			return "price:" + details.Price.ExternalProductID
		}
	case models.ConflictTypeDataConflict:
		if details.Data != nil {
			return fmt.Sprintf("data:%d:%d:%s", details.Data.SourceProductID, details.Data.TargetProductID, details.Data.Field)
		}
	case models.ConflictTypeDuplicateProduct:
		if details.Duplicate != nil {
			return fmt.Sprintf("dup:%d:%d", details.Duplicate.ProductID, details.Duplicate.DuplicateProductID)
		}
	}
	return ""
}

func (s *ConflictService) GetConflict(conflictID uuid.UUID) (*models.ConflictResolution, error) {
	var conflict models.ConflictResolution
	if err := s.db.Preload("SourceStore").Preload("TargetStore").
		First(&conflict, conflictID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("conflict not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &conflict, nil
}

func (s *ConflictService) GetConflicts(filter ConflictFilter, params utils.PaginationParams) ([]models.ConflictResolution, int64, error) {
	query := s.db.Model(&models.ConflictResolution{})
	if filter.GroupID != uuid.Nil {
		query = query.Where("group_id = ?", filter.GroupID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}

	var conflicts []models.ConflictResolution
	sorted := utils.ApplySort(query, params, []string{"created_at", "severity", "status", "type"})
	if err := utils.ApplyPagination(sorted, params).Find(&conflicts).Error; err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}
	return conflicts, total, nil
}

// ResolveConflict applies a strategy to a pending conflict and marks it
// resolved. Non-pending conflicts are rejected.
func (s *ConflictService) ResolveConflict(ctx context.Context, conflictID uuid.UUID, req *ResolveConflictRequest) (*models.ConflictResolution, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	conflict, err := s.GetConflict(conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != models.ConflictStatusPending {
		return nil, ErrConflictNotPending
	}

	resolution := models.JSONB{}
	for k, v := range req.ResolutionData {
		resolution[k] = v
	}

	if conflict.Type == models.ConflictTypeDuplicateProduct {
		action := req.DuplicateAction
		if action == "" {
			action = models.DuplicateActionKeepBoth
		}
		if err := s.applyDuplicateAction(ctx, conflict, action); err != nil {
			return nil, err
		}
		resolution["action"] = string(action)
	} else {
		switch req.Strategy {
		case models.StrategyAutoMasterWins:
			err = s.applyMasterWins(ctx, conflict, resolution)
		case models.StrategyAutoLatestWins:
			err = s.applyLatestWins(ctx, conflict, resolution)
		case models.StrategyAutoMerge:
			err = s.applyMerge(ctx, conflict, resolution)
		case models.StrategyManual:
			// The operator made the change out of band; only the decision is
			// recorded.
		}
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.ConflictStatusResolved,
		"strategy":        req.Strategy,
		"resolved_by":     req.ResolvedBy,
		"resolved_at":     now,
		"resolution_data": resolution,
	}
	// Guarded transition: a concurrent resolve or ignore that got there first
	// leaves zero rows for this update.
	result := s.db.Model(&models.ConflictResolution{}).
		Where("id = ? AND status = ?", conflict.ID, models.ConflictStatusPending).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflictNotPending
	}

	logrus.WithFields(logrus.Fields{
		"conflict_id": conflict.ID,
		"strategy":    req.Strategy,
		"resolved_by": req.ResolvedBy,
	}).Info("Conflict resolved")

	return s.GetConflict(conflictID)
}

// IgnoreConflict closes a pending conflict without acting on either store.
func (s *ConflictService) IgnoreConflict(conflictID uuid.UUID, ignoredBy string) (*models.ConflictResolution, error) {
	conflict, err := s.GetConflict(conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != models.ConflictStatusPending {
		return nil, ErrConflictNotPending
	}

	now := time.Now()
	result := s.db.Model(&models.ConflictResolution{}).
		Where("id = ? AND status = ?", conflict.ID, models.ConflictStatusPending).
		Updates(map[string]interface{}{
			"status":      models.ConflictStatusIgnored,
			"resolved_by": ignoredBy,
			"resolved_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to ignore conflict: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflictNotPending
	}
	return s.GetConflict(conflictID)
}

// ResolveBatchConflicts applies one strategy across many conflicts,
// continuing past individual failures.
func (s *ConflictService) ResolveBatchConflicts(ctx context.Context, conflictIDs []uuid.UUID, req *ResolveConflictRequest) *BatchResolveResult {
	result := &BatchResolveResult{Failed: make(map[uuid.UUID]string)}
	for _, id := range conflictIDs {
		if _, err := s.ResolveConflict(ctx, id, req); err != nil {
			result.Failed[id] = err.Error()
			logrus.WithField("conflict_id", id).WithError(err).
				Warn("Batch resolution skipped conflict")
			continue
		}
		result.Resolved = append(result.Resolved, id)
	}
	return result
}

// --- strategy application ---

func (s *ConflictService) conflictStores(conflict *models.ConflictResolution) (*models.Store, *models.Store, error) {
	var source, target models.Store
	if err := s.db.First(&source, conflict.SourceStoreID).Error; err != nil {
		return nil, nil, errors.New("source store not found")
	}
	if err := s.db.First(&target, conflict.TargetStoreID).Error; err != nil {
		return nil, nil, errors.New("target store not found")
	}
	return &source, &target, nil
}

func (s *ConflictService) applyMasterWins(ctx context.Context, conflict *models.ConflictResolution, resolution models.JSONB) error {
	source, target, err := s.conflictStores(conflict)
	if err != nil {
		return err
	}

	winner := conflict.SourceStoreID
	if target.IsMaster && !source.IsMaster {
		winner = conflict.TargetStoreID
	} else if !source.IsMaster && !target.IsMaster {
		master, err := s.stores.MasterStore(conflict.GroupID)
		if err != nil {
			return err
		}
		if master == nil {
			return errors.New("group has no master store")
		}
		return fmt.Errorf("neither store in the conflict is the master")
	}

	resolution["winner_store_id"] = winner.String()
	return s.applyWinner(ctx, conflict, source, target, winner)
}

func (s *ConflictService) applyLatestWins(ctx context.Context, conflict *models.ConflictResolution, resolution models.JSONB) error {
	source, target, err := s.conflictStores(conflict)
	if err != nil {
		return err
	}

	winner, err := s.recency.Winner(ctx, conflict, source, target)
	if err != nil {
		return fmt.Errorf("recency comparison failed: %w", err)
	}

	resolution["winner_store_id"] = winner.String()
	return s.applyWinner(ctx, conflict, source, target, winner)
}

// applyWinner pushes the winning store's value onto the losing store.
func (s *ConflictService) applyWinner(ctx context.Context, conflict *models.ConflictResolution, source, target *models.Store, winner uuid.UUID) error {
	sourceWins := winner == source.ID
	loser := target
	if !sourceWins {
		loser = source
	}
	client := s.clients.ClientFor(loser)

	switch conflict.Type {
	case models.ConflictTypeInventoryMismatch:
		d := conflict.Details.Inventory
		if d == nil {
			return errors.New("conflict has no inventory details")
		}
		quantity, variantID := d.SourceQuantity, d.TargetVariantID
		if !sourceWins {
			quantity, variantID = d.TargetQuantity, d.SourceVariantID
		}
		return client.SetInventoryLevel(ctx, variantID, quantity)

	case models.ConflictTypePriceConflict:
		d := conflict.Details.Price
		if d == nil {
			return errors.New("conflict has no price details")
		}
		price, variantID := d.SourcePrice, d.TargetVariantID
		if !sourceWins {
			price, variantID = d.TargetPrice, d.SourceVariantID
		}
		_, err := client.UpdateVariant(ctx, &shopify.Variant{
			ID:    variantID,
			Price: strconv.FormatFloat(price, 'f', 2, 64),
		})
		return err

	case models.ConflictTypeDataConflict:
		d := conflict.Details.Data
		if d == nil {
			return errors.New("conflict has no data details")
		}
		value, productID := d.SourceValue, d.TargetProductID
		if !sourceWins {
			value, productID = d.TargetValue, d.SourceProductID
		}
		return s.pushProductField(ctx, client, productID, d.Field, value)
	}

	return fmt.Errorf("strategy does not apply to %q conflicts", conflict.Type)
}

// applyMerge converges both stores on a combined value: inventory on the
// floor of the mean, price on the higher of the two, data on the non-empty
// value.
func (s *ConflictService) applyMerge(ctx context.Context, conflict *models.ConflictResolution, resolution models.JSONB) error {
	source, target, err := s.conflictStores(conflict)
	if err != nil {
		return err
	}
	sourceClient := s.clients.ClientFor(source)
	targetClient := s.clients.ClientFor(target)

	switch conflict.Type {
	case models.ConflictTypeInventoryMismatch:
		d := conflict.Details.Inventory
		if d == nil {
			return errors.New("conflict has no inventory details")
		}
		merged := (d.SourceQuantity + d.TargetQuantity) / 2
		resolution["merged_quantity"] = merged
		if err := sourceClient.SetInventoryLevel(ctx, d.SourceVariantID, merged); err != nil {
			return err
		}
		return targetClient.SetInventoryLevel(ctx, d.TargetVariantID, merged)

	case models.ConflictTypePriceConflict:
		d := conflict.Details.Price
		if d == nil {
			return errors.New("conflict has no price details")
		}
		merged := d.SourcePrice
		if d.TargetPrice > merged {
			merged = d.TargetPrice
		}
		resolution["merged_price"] = merged
		price := strconv.FormatFloat(merged, 'f', 2, 64)
		if _, err := sourceClient.UpdateVariant(ctx, &shopify.Variant{ID: d.SourceVariantID, Price: price}); err != nil {
			return err
		}
		_, err := targetClient.UpdateVariant(ctx, &shopify.Variant{ID: d.TargetVariantID, Price: price})
		return err

	case models.ConflictTypeDataConflict:
		d := conflict.Details.Data
		if d == nil {
			return errors.New("conflict has no data details")
		}
		value := d.SourceValue
		if value == "" {
			value = d.TargetValue
		}
		resolution["merged_value"] = value
		if value != d.SourceValue {
			return s.pushProductField(ctx, sourceClient, d.SourceProductID, d.Field, value)
		}
		if value != d.TargetValue {
			return s.pushProductField(ctx, targetClient, d.TargetProductID, d.Field, value)
		}
		return nil
	}

	return fmt.Errorf("strategy does not apply to %q conflicts", conflict.Type)
}

func (s *ConflictService) pushProductField(ctx context.Context, client shopify.Client, productID int64, field, value string) error {
	product, err := client.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	switch field {
	case "title":
		product.Title = value
	case "vendor":
		product.Vendor = value
	case "product_type":
		product.ProductType = value
	case "body_html":
		product.BodyHTML = value
	case "tags":
		product.Tags = value
	default:
		return fmt.Errorf("unknown product field %q", field)
	}
	_, err = client.UpdateProduct(ctx, product)
	return err
}

// applyDuplicateAction handles duplicate_product conflicts, which live inside
// a single store.
func (s *ConflictService) applyDuplicateAction(ctx context.Context, conflict *models.ConflictResolution, action models.DuplicateAction) error {
	d := conflict.Details.Duplicate
	if d == nil {
		return errors.New("conflict has no duplicate details")
	}

	var store models.Store
	if err := s.db.First(&store, conflict.SourceStoreID).Error; err != nil {
		return errors.New("store not found")
	}
	client := s.clients.ClientFor(&store)

	switch action {
	case models.DuplicateActionKeepBoth:
		return nil

	case models.DuplicateActionDelete:
		return client.DeleteProduct(ctx, d.DuplicateProductID)

	case models.DuplicateActionMergeVariants:
		primary, err := client.GetProduct(ctx, d.ProductID)
		if err != nil {
			return err
		}
		duplicate, err := client.GetProduct(ctx, d.DuplicateProductID)
		if err != nil {
			return err
		}
		for _, variant := range duplicate.Variants {
			variant.ID = 0
			variant.ProductID = 0
			primary.Variants = append(primary.Variants, variant)
		}
		if _, err := client.UpdateProduct(ctx, primary); err != nil {
			return err
		}
		return client.DeleteProduct(ctx, d.DuplicateProductID)
	}

	return fmt.Errorf("unknown duplicate action %q", action)
}

// --- scanning ---

// ScanGroupForConflicts compares the master store's catalog against every
// other sync-enabled member and flags divergences beyond the configured
// tolerances. It also flags near-identical products inside each store.
func (s *ConflictService) ScanGroupForConflicts(ctx context.Context, groupID uuid.UUID) (int, error) {
	master, err := s.stores.MasterStore(groupID)
	if err != nil {
		return 0, err
	}
	if master == nil {
		return 0, errors.New("group has no master store")
	}

	members, err := s.stores.SyncEnabledMembers(groupID)
	if err != nil {
		return 0, err
	}

	masterProducts, err := s.listAll(ctx, master)
	if err != nil {
		return 0, fmt.Errorf("failed to list master products: %w", err)
	}

	detected := 0
	detected += s.scanForDuplicates(groupID, master, masterProducts)

	for i := range members {
		member := &members[i]
		if member.ID == master.ID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return detected, err
		}

		products, err := s.listAll(ctx, member)
		if err != nil {
			logrus.WithField("store", member.ShopDomain).WithError(err).
				Warn("Scan skipped unreachable store")
			continue
		}

		detected += s.scanForDuplicates(groupID, member, products)
		detected += s.scanStorePair(groupID, master, member, masterProducts, products)
	}

	return detected, nil
}

func (s *ConflictService) listAll(ctx context.Context, store *models.Store) ([]shopify.Product, error) {
	client := s.clients.ClientFor(store)
	var all []shopify.Product
	pageInfo := ""
	for {
		page, next, err := client.ListProducts(ctx, pageInfo)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		pageInfo = next
	}
}

func (s *ConflictService) scanStorePair(groupID uuid.UUID, source, target *models.Store, sourceProducts, targetProducts []shopify.Product) int {
	tolerance := s.cfg.InventoryTolerance
	if tolerance <= 0 {
		tolerance = 10
	}
	pricePct := s.cfg.PriceTolerancePct
	if pricePct <= 0 {
		pricePct = 5.0
	}

	detected := 0
	for i := range sourceProducts {
		product := &sourceProducts[i]
		match := matchInStore(product, targetProducts, s.cfg.MatchThreshold)
		if match == nil {
			continue
		}

		sourceQty := product.TotalInventory()
		targetQty := match.TotalInventory()
		gap := sourceQty - targetQty
		if gap < 0 {
			gap = -gap
		}
		if gap > tolerance {
			details := models.ConflictDetails{
				Inventory: &models.InventoryConflictDetails{
					ExternalProductID: strconv.FormatInt(match.ID, 10),
					SourceProductID:   product.ID,
					SourceQuantity:    sourceQty,
					TargetQuantity:    targetQty,
					Reason:            "inventory divergence beyond tolerance",
				},
			}
			if v := product.FirstVariant(); v != nil {
				details.Inventory.SourceVariantID = v.ID
			}
			if v := match.FirstVariant(); v != nil {
				details.Inventory.TargetVariantID = v.ID
			}
			if _, created, err := s.DetectConflict(nil, groupID, models.ConflictTypeInventoryMismatch,
				source.ID, target.ID, details,
				severityForInventoryGap(sourceQty, targetQty, tolerance)); err == nil && created {
				detected++
			}
		}

		sv, tv := product.FirstVariant(), match.FirstVariant()
		if sv != nil && tv != nil && sv.PriceValue() > 0 {
			diff := (sv.PriceValue() - tv.PriceValue()) / sv.PriceValue() * 100
			if diff < 0 {
				diff = -diff
			}
			if diff > pricePct {
				if _, created, err := s.DetectConflict(nil, groupID, models.ConflictTypePriceConflict,
					source.ID, target.ID, models.ConflictDetails{
						Price: &models.PriceConflictDetails{
							ExternalProductID: strconv.FormatInt(match.ID, 10),
							SourceProductID:   product.ID,
							SourceVariantID:   sv.ID,
							TargetVariantID:   tv.ID,
							SourcePrice:       sv.PriceValue(),
							TargetPrice:       tv.PriceValue(),
						},
					}, severityForPriceGap(sv.PriceValue(), tv.PriceValue(), pricePct)); err == nil && created {
					detected++
				}
			}
		}

		if field, sourceValue, targetValue, differs := firstDataDivergence(product, match); differs {
			if _, created, err := s.DetectConflict(nil, groupID, models.ConflictTypeDataConflict,
				source.ID, target.ID, models.ConflictDetails{
					Data: &models.DataConflictDetails{
						SourceProductID: product.ID,
						TargetProductID: match.ID,
						Field:           field,
						SourceValue:     sourceValue,
						TargetValue:     targetValue,
					},
				}, models.SeverityLow); err == nil && created {
				detected++
			}
		}
	}
	return detected
}

// scanForDuplicates flags near-identical product pairs inside one store.
func (s *ConflictService) scanForDuplicates(groupID uuid.UUID, store *models.Store, products []shopify.Product) int {
	const duplicateCutoff = 0.9

	detected := 0
	for i := range products {
		for j := i + 1; j < len(products); j++ {
			a, b := &products[i], &products[j]

			sku := ""
			if v := a.FirstVariant(); v != nil {
				sku = v.SKU
			}
			variants := make(models.ProductVariants, 0, len(b.Variants))
			for _, v := range b.Variants {
				variants = append(variants, models.ProductVariant{SKU: v.SKU})
			}

			score, fields := ScoreProductSimilarity(a.Title, sku, a.Handle, b.Title, b.Handle, variants)
			if score < duplicateCutoff || len(fields) < 2 {
				continue
			}

			if _, created, err := s.DetectConflict(nil, groupID, models.ConflictTypeDuplicateProduct,
				store.ID, store.ID, models.ConflictDetails{
					Duplicate: &models.DuplicateConflictDetails{
						ProductID:          a.ID,
						DuplicateProductID: b.ID,
						Title:              a.Title,
					},
				}, models.SeverityMedium); err == nil && created {
				detected++
			}
		}
	}
	return detected
}

// updatedAtRecencyPolicy compares product update timestamps when both product
// ids are known, falling back to each store's last successful sync.
type updatedAtRecencyPolicy struct {
	clients shopify.ClientFactory
}

// conflictProductIDs extracts the two external product ids the conflict is
// about, zero when a side is unknown.
func conflictProductIDs(conflict *models.ConflictResolution) (int64, int64) {
	switch {
	case conflict.Details.Data != nil:
		return conflict.Details.Data.SourceProductID, conflict.Details.Data.TargetProductID
	case conflict.Details.Inventory != nil:
		targetID, _ := strconv.ParseInt(conflict.Details.Inventory.ExternalProductID, 10, 64)
		return conflict.Details.Inventory.SourceProductID, targetID
	case conflict.Details.Price != nil:
		targetID, _ := strconv.ParseInt(conflict.Details.Price.ExternalProductID, 10, 64)
		return conflict.Details.Price.SourceProductID, targetID
	}
	return 0, 0
}

func (p *updatedAtRecencyPolicy) Winner(ctx context.Context, conflict *models.ConflictResolution, source, target *models.Store) (uuid.UUID, error) {
	if sourcePID, targetPID := conflictProductIDs(conflict); sourcePID != 0 && targetPID != 0 {
		sourceProduct, err := p.clients.ClientFor(source).GetProduct(ctx, sourcePID)
		if err != nil {
			return uuid.Nil, err
		}
		targetProduct, err := p.clients.ClientFor(target).GetProduct(ctx, targetPID)
		if err != nil {
			return uuid.Nil, err
		}
		if targetProduct.UpdatedAt.After(sourceProduct.UpdatedAt) {
			return target.ID, nil
		}
		return source.ID, nil
	}

	switch {
	case source.LastSyncAt == nil && target.LastSyncAt == nil:
		return source.ID, nil
	case source.LastSyncAt == nil:
		return target.ID, nil
	case target.LastSyncAt == nil:
		return source.ID, nil
	case target.LastSyncAt.After(*source.LastSyncAt):
		return target.ID, nil
	}
	return source.ID, nil
}
