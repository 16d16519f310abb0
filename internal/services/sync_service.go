// internal/services/sync_service.go
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

	"github.com/iaminawe/Mercury-Platform-sub001/internal/cache"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

var (
	ErrOperationTerminal = errors.New("operation already finished")
	ErrNoSyncTargets     = errors.New("no sync-enabled target stores in group")
)

// SyncService orchestrates sync operations across a store group. Operations
// are persisted first, then handed to the dispatcher; workers call back into
// Execute.
type SyncService struct {
	db         *gorm.DB
	stores     *StoreService
	aggregator *AggregatorService
	conflicts  *ConflictService
	clients    shopify.ClientFactory
	progress   *cache.ProgressCache
	dispatcher *Dispatcher
	cfg        config.SyncConfig
}

type InitiateSyncRequest struct {
	GroupID        uuid.UUID            `json:"group_id" validate:"required"`
	Type           models.OperationType `json:"type" validate:"required,oneof=inventory_sync product_sync customer_sync full_sync"`
	Mode           models.SyncMode      `json:"mode,omitempty" validate:"omitempty,oneof=real_time batch scheduled"`
	SourceStoreID  *uuid.UUID           `json:"source_store_id,omitempty"`
	TargetStoreIDs []uuid.UUID          `json:"target_store_ids,omitempty"`
}

func NewSyncService(db *gorm.DB, stores *StoreService, aggregator *AggregatorService, conflicts *ConflictService, clients shopify.ClientFactory, progress *cache.ProgressCache, cfg config.SyncConfig) *SyncService {
	return &SyncService{
		db:         db,
		stores:     stores,
		aggregator: aggregator,
		conflicts:  conflicts,
		clients:    clients,
		progress:   progress,
		cfg:        cfg,
	}
}

// SetDispatcher wires the worker pool after construction; the dispatcher
// needs the service as its executor, so the dependency runs both ways.
func (s *SyncService) SetDispatcher(d *Dispatcher) {
	s.dispatcher = d
}

// InitiateSyncOperation validates and persists a pending operation, then
// queues it. The source defaults to the group's master store and the targets
// default to every other sync-enabled member.
func (s *SyncService) InitiateSyncOperation(initiatedBy uuid.UUID, req *InitiateSyncRequest) (*models.SyncOperation, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var group models.StoreGroup
	if err := s.db.First(&group, req.GroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("store group not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	sourceID := req.SourceStoreID
	if sourceID == nil {
		master, err := s.stores.MasterStore(req.GroupID)
		if err != nil {
			return nil, err
		}
		if master != nil {
			sourceID = &master.ID
		}
	}
	if sourceID != nil {
		var source models.Store
		if err := s.db.First(&source, *sourceID).Error; err != nil {
			return nil, errors.New("source store not found")
		}
		if source.GroupID == nil || *source.GroupID != req.GroupID {
			return nil, ErrStoreNotInGroup
		}
	}

	targetIDs := req.TargetStoreIDs
	if len(targetIDs) == 0 {
		members, err := s.stores.SyncEnabledMembers(req.GroupID)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			if sourceID != nil && member.ID == *sourceID {
				continue
			}
			targetIDs = append(targetIDs, member.ID)
		}
	}
	if len(targetIDs) == 0 {
		return nil, ErrNoSyncTargets
	}

	mode := req.Mode
	if mode == "" {
		mode = group.DefaultSyncMode
	}

	targets := make([]string, 0, len(targetIDs))
	for _, id := range targetIDs {
		targets = append(targets, id.String())
	}

	operation := &models.SyncOperation{
		GroupID:        req.GroupID,
		Type:           req.Type,
		Mode:           mode,
		SourceStoreID:  sourceID,
		TargetStoreIDs: targets,
		Status:         models.OperationStatusPending,
		InitiatedBy:    &initiatedBy,
	}
	if err := s.db.Create(operation).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync operation: %w", err)
	}

	if err := s.dispatcher.Enqueue(operation.ID); err != nil {
		s.failOperation(operation, "QUEUE_FULL", err.Error(), "")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"operation_id": operation.ID,
		"group_id":     req.GroupID,
		"type":         req.Type,
	}).Info("Sync operation queued")

	return operation, nil
}

// Execute runs one queued operation to a terminal state. Called from
// dispatcher workers.
func (s *SyncService) Execute(ctx context.Context, operationID uuid.UUID) {
	var op models.SyncOperation
	if err := s.db.First(&op, operationID).Error; err != nil {
		logrus.WithField("operation_id", operationID).WithError(err).
			Error("Queued operation not found")
		return
	}
	// Cancelled while still queued.
	if op.Status != models.OperationStatusPending {
		return
	}

	now := time.Now()
	s.db.Model(&op).Updates(map[string]interface{}{
		"status":     models.OperationStatusRunning,
		"started_at": now,
	})
	op.Status = models.OperationStatusRunning
	op.StartedAt = &now
	s.mirrorSnapshot(ctx, &op)

	involved := s.involvedStoreIDs(&op)
	s.setStoresSyncStatus(involved, models.StoreSyncStatusSyncing)

	tracker := &progressTracker{svc: s, op: &op}

	var err error
	switch op.Type {
	case models.OperationTypeInventorySync:
		err = s.runInventorySync(ctx, &op, tracker)
	case models.OperationTypeProductSync:
		err = s.runProductSync(ctx, &op, tracker)
	case models.OperationTypeCustomerSync:
		err = s.runCustomerSync(ctx, &op, tracker)
	case models.OperationTypeFullSync:
		err = s.runFullSync(ctx, &op, tracker)
	default:
		err = fmt.Errorf("unknown operation type %q", op.Type)
	}

	finished := time.Now()
	switch {
	case errors.Is(err, context.Canceled):
		s.db.Model(&op).Updates(map[string]interface{}{
			"status":       models.OperationStatusCancelled,
			"completed_at": finished,
		})
		op.Status = models.OperationStatusCancelled
		logrus.WithField("operation_id", op.ID).Info("Sync operation cancelled")
	case err != nil:
		s.failOperation(&op, "SYNC_FAILED", err.Error(), "")
		s.setStoresSyncStatus(involved, models.StoreSyncStatusError)
		s.mirrorSnapshot(ctx, &op)
		logrus.WithField("operation_id", op.ID).WithError(err).Error("Sync operation failed")
		return
	default:
		s.db.Model(&op).Updates(map[string]interface{}{
			"status":       models.OperationStatusCompleted,
			"progress":     100,
			"completed_at": finished,
		})
		op.Status = models.OperationStatusCompleted
		op.Progress = 100
		for _, id := range involved {
			s.stores.TouchLastSync(id, finished)
		}
		logrus.WithFields(logrus.Fields{
			"operation_id": op.ID,
			"processed":    op.ProcessedItems,
			"failed":       op.FailedItems,
		}).Info("Sync operation completed")
	}

	op.CompletedAt = &finished
	s.setStoresSyncStatus(involved, models.StoreSyncStatusActive)
	s.mirrorSnapshot(ctx, &op)
}

// GetSyncOperationStatus serves status polls from the cache when fresh,
// falling back to the database.
func (s *SyncService) GetSyncOperationStatus(ctx context.Context, operationID uuid.UUID) (*cache.OperationSnapshot, error) {
	if snapshot, err := s.progress.Get(ctx, operationID.String()); err == nil && snapshot != nil {
		return snapshot, nil
	}

	var op models.SyncOperation
	if err := s.db.First(&op, operationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("sync operation not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return snapshotOf(&op), nil
}

// CancelOperation stops a pending or running operation. Terminal operations
// are rejected.
func (s *SyncService) CancelOperation(operationID uuid.UUID) error {
	var op models.SyncOperation
	if err := s.db.First(&op, operationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("sync operation not found")
		}
		return fmt.Errorf("database error: %w", err)
	}
	if op.IsTerminal() {
		return ErrOperationTerminal
	}

	if op.Status == models.OperationStatusRunning && s.dispatcher.Cancel(op.ID) {
		// The worker persists the cancelled state on its way out.
		return nil
	}

	now := time.Now()
	if err := s.db.Model(&op).Updates(map[string]interface{}{
		"status":       models.OperationStatusCancelled,
		"completed_at": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to cancel operation: %w", err)
	}
	s.progress.Invalidate(context.Background(), op.ID.String())
	return nil
}

func (s *SyncService) ListOperations(groupID uuid.UUID, status models.OperationStatus, params utils.PaginationParams) ([]models.SyncOperation, int64, error) {
	query := s.db.Model(&models.SyncOperation{}).Where("group_id = ?", groupID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}

	var operations []models.SyncOperation
	sorted := utils.ApplySort(query, params, []string{"created_at", "status", "type", "completed_at"})
	if err := utils.ApplyPagination(sorted, params).Find(&operations).Error; err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}
	return operations, total, nil
}

// --- sync passes ---

// runInventorySync propagates quantities. With a source store its counts win;
// without one, peers converge on the floor of their mean per product.
func (s *SyncService) runInventorySync(ctx context.Context, op *models.SyncOperation, tracker *progressTracker) error {
	if op.SourceStoreID != nil {
		return s.runSourceInventorySync(ctx, op, tracker)
	}
	return s.runPeerInventorySync(ctx, op, tracker)
}

func (s *SyncService) runSourceInventorySync(ctx context.Context, op *models.SyncOperation, tracker *progressTracker) error {
	source, sourceProducts, err := s.loadStoreProducts(ctx, *op.SourceStoreID)
	if err != nil {
		return err
	}

	targets, targetProducts, err := s.loadTargets(ctx, op)
	if err != nil {
		return err
	}

	tracker.setTotal(ctx, len(sourceProducts))

	processed, failed := 0, 0
	for i := range sourceProducts {
		if err := ctx.Err(); err != nil {
			return err
		}
		product := &sourceProducts[i]

		unified, err := s.aggregator.FindOrCreateUnifiedInventory(op.GroupID, source.ID, product, s.cfg.MatchThreshold)
		if err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"operation_id": op.ID,
				"product":      product.Title,
			}).WithError(err).Warn("Failed to aggregate product")
			processed++
			tracker.update(ctx, processed, failed)
			continue
		}

		quantity := product.TotalInventory()
		for _, target := range targets {
			match := matchInStore(product, targetProducts[target.ID], s.cfg.MatchThreshold)
			if match == nil {
				continue
			}
			variant := match.FirstVariant()
			if variant == nil || variant.InventoryQuantity == quantity {
				continue
			}

			client := s.clients.ClientFor(&target)
			if err := client.SetInventoryLevel(ctx, variant.ID, quantity); err != nil {
				failed++
				logrus.WithFields(logrus.Fields{
					"operation_id": op.ID,
					"target":       target.ShopDomain,
					"product":      product.Title,
				}).WithError(err).Warn("Failed to push inventory level")

				details := models.ConflictDetails{
					Inventory: &models.InventoryConflictDetails{
						ExternalProductID: strconv.FormatInt(match.ID, 10),
						SourceProductID:   product.ID,
						TargetVariantID:   variant.ID,
						SourceQuantity:    quantity,
						TargetQuantity:    variant.InventoryQuantity,
						Reason:            err.Error(),
					},
				}
				if sv := product.FirstVariant(); sv != nil {
					details.Inventory.SourceVariantID = sv.ID
				}
				s.conflicts.DetectConflict(&op.ID, op.GroupID, models.ConflictTypeInventoryMismatch,
					source.ID, target.ID, details,
					severityForInventoryGap(quantity, variant.InventoryQuantity, s.cfg.InventoryTolerance))
				continue
			}

			if err := s.aggregator.RecordStoreInventory(unified.ID, target.ID,
				strconv.FormatInt(match.ID, 10), strconv.FormatInt(variant.ID, 10), quantity); err != nil {
				logrus.WithField("operation_id", op.ID).WithError(err).
					Warn("Failed to record pushed inventory")
			}
		}

		processed++
		tracker.update(ctx, processed, failed)
	}

	return nil
}

func (s *SyncService) runPeerInventorySync(ctx context.Context, op *models.SyncOperation, tracker *progressTracker) error {
	members, err := s.stores.SyncEnabledMembers(op.GroupID)
	if err != nil {
		return err
	}
	if len(members) < 2 {
		return errors.New("peer inventory sync needs at least two sync-enabled stores")
	}

	storeByID := make(map[uuid.UUID]models.Store, len(members))
	for _, member := range members {
		storeByID[member.ID] = member

		products, err := s.listAllProducts(ctx, s.clients.ClientFor(&member))
		if err != nil {
			return fmt.Errorf("failed to list products for %s: %w", member.ShopDomain, err)
		}
		for i := range products {
			if _, err := s.aggregator.FindOrCreateUnifiedInventory(op.GroupID, member.ID, &products[i], s.cfg.MatchThreshold); err != nil {
				logrus.WithFields(logrus.Fields{
					"operation_id": op.ID,
					"store":        member.ShopDomain,
					"product":      products[i].Title,
				}).WithError(err).Warn("Failed to aggregate product")
			}
		}
	}

	var unified []models.MultiStoreInventory
	if err := s.db.Preload("Mappings").Where("group_id = ?", op.GroupID).
		Find(&unified).Error; err != nil {
		return fmt.Errorf("failed to load unified inventory: %w", err)
	}

	tracker.setTotal(ctx, len(unified))

	processed, failed := 0, 0
	for _, inventory := range unified {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(inventory.Mappings) < 2 {
			processed++
			tracker.update(ctx, processed, failed)
			continue
		}

		sum := 0
		for _, mapping := range inventory.Mappings {
			sum += mapping.LocalInventory
		}
		// Floor of the mean so reconciliation never invents stock.
		target := sum / len(inventory.Mappings)

		for _, mapping := range inventory.Mappings {
			if mapping.LocalInventory == target {
				continue
			}
			store, ok := storeByID[mapping.StoreID]
			if !ok {
				continue
			}
			variantID, err := strconv.ParseInt(mapping.ExternalVariantID, 10, 64)
			if err != nil {
				continue
			}
			if err := s.clients.ClientFor(&store).SetInventoryLevel(ctx, variantID, target); err != nil {
				failed++
				logrus.WithFields(logrus.Fields{
					"operation_id": op.ID,
					"store":        store.ShopDomain,
					"product":      inventory.Title,
				}).WithError(err).Warn("Failed to push reconciled level")
				continue
			}
			if err := s.aggregator.RecordStoreInventory(inventory.ID, store.ID,
				mapping.ExternalProductID, mapping.ExternalVariantID, target); err != nil {
				logrus.WithField("operation_id", op.ID).WithError(err).
					Warn("Failed to record reconciled inventory")
			}
		}

		processed++
		tracker.update(ctx, processed, failed)
	}

	return nil
}

// runProductSync pushes the source store's catalog to each target,
// updating matched products and creating the rest.
func (s *SyncService) runProductSync(ctx context.Context, op *models.SyncOperation, tracker *progressTracker) error {
	if op.SourceStoreID == nil {
		return errors.New("product sync requires a source store")
	}

	source, sourceProducts, err := s.loadStoreProducts(ctx, *op.SourceStoreID)
	if err != nil {
		return err
	}
	targets, targetProducts, err := s.loadTargets(ctx, op)
	if err != nil {
		return err
	}

	tracker.setTotal(ctx, len(sourceProducts)*len(targets))

	processed, failed := 0, 0
	for i := range sourceProducts {
		product := &sourceProducts[i]

		if _, err := s.aggregator.FindOrCreateUnifiedInventory(op.GroupID, source.ID, product, s.cfg.MatchThreshold); err != nil {
			logrus.WithField("operation_id", op.ID).WithError(err).
				Warn("Failed to aggregate product")
		}

		for _, target := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}

			client := s.clients.ClientFor(&target)
			match := matchInStore(product, targetProducts[target.ID], s.cfg.MatchThreshold)

			if match == nil {
				created := shopify.Product{
					Title:       product.Title,
					BodyHTML:    product.BodyHTML,
					Handle:      product.Handle,
					Vendor:      product.Vendor,
					ProductType: product.ProductType,
					Tags:        product.Tags,
				}
				for _, v := range product.Variants {
					created.Variants = append(created.Variants, shopify.Variant{
						Title:             v.Title,
						SKU:               v.SKU,
						Price:             v.Price,
						InventoryQuantity: v.InventoryQuantity,
					})
				}
				if _, err := client.CreateProduct(ctx, &created); err != nil {
					failed++
					logrus.WithFields(logrus.Fields{
						"operation_id": op.ID,
						"target":       target.ShopDomain,
						"product":      product.Title,
					}).WithError(err).Warn("Failed to create product on target")
				}
				processed++
				tracker.update(ctx, processed, failed)
				continue
			}

			if err := s.pushProductUpdate(ctx, op, client, source.ID, target.ID, product, match); err != nil {
				failed++
			}
			processed++
			tracker.update(ctx, processed, failed)
		}
	}

	return nil
}

// pushProductUpdate brings one matched target product in line with the
// source, emitting a conflict for anything it cannot push.
func (s *SyncService) pushProductUpdate(ctx context.Context, op *models.SyncOperation, client shopify.Client, sourceID, targetID uuid.UUID, source, target *shopify.Product) error {
	if field, sourceValue, targetValue, differs := firstDataDivergence(source, target); differs {
		updated := *target
		updated.Title = source.Title
		updated.BodyHTML = source.BodyHTML
		updated.Vendor = source.Vendor
		updated.ProductType = source.ProductType
		updated.Tags = source.Tags
		if _, err := client.UpdateProduct(ctx, &updated); err != nil {
			logrus.WithFields(logrus.Fields{
				"operation_id": op.ID,
				"product":      source.Title,
				"field":        field,
			}).WithError(err).Warn("Failed to push product data")

			s.conflicts.DetectConflict(&op.ID, op.GroupID, models.ConflictTypeDataConflict,
				sourceID, targetID, models.ConflictDetails{
					Data: &models.DataConflictDetails{
						SourceProductID: source.ID,
						TargetProductID: target.ID,
						Field:           field,
						SourceValue:     sourceValue,
						TargetValue:     targetValue,
					},
				}, models.SeverityMedium)
			return err
		}
	}

	sourceVariant := source.FirstVariant()
	targetVariant := target.FirstVariant()
	if sourceVariant == nil || targetVariant == nil {
		return nil
	}
	if sourceVariant.PriceValue() == targetVariant.PriceValue() {
		return nil
	}

	updated := *targetVariant
	updated.Price = sourceVariant.Price
	if _, err := client.UpdateVariant(ctx, &updated); err != nil {
		logrus.WithFields(logrus.Fields{
			"operation_id": op.ID,
			"product":      source.Title,
		}).WithError(err).Warn("Failed to push variant price")

		s.conflicts.DetectConflict(&op.ID, op.GroupID, models.ConflictTypePriceConflict,
			sourceID, targetID, models.ConflictDetails{
				Price: &models.PriceConflictDetails{
					ExternalProductID: strconv.FormatInt(target.ID, 10),
					SourceProductID:   source.ID,
					SourceVariantID:   sourceVariant.ID,
					TargetVariantID:   targetVariant.ID,
					SourcePrice:       sourceVariant.PriceValue(),
					TargetPrice:       targetVariant.PriceValue(),
				},
			}, severityForPriceGap(sourceVariant.PriceValue(), targetVariant.PriceValue(), s.cfg.PriceTolerancePct))
		return err
	}

	return nil
}

func (s *SyncService) runCustomerSync(ctx context.Context, op *models.SyncOperation, tracker *progressTracker) error {
	if !s.cfg.CustomerSyncEnabled {
		return errors.New("customer sync is disabled")
	}

	memberIDs := op.TargetUUIDs()
	if op.SourceStoreID != nil {
		memberIDs = append([]uuid.UUID{*op.SourceStoreID}, memberIDs...)
	}

	type storeCustomers struct {
		store     models.Store
		customers []shopify.Customer
	}

	batches := make([]storeCustomers, 0, len(memberIDs))
	total := 0
	for _, id := range memberIDs {
		var store models.Store
		if err := s.db.First(&store, id).Error; err != nil {
			return fmt.Errorf("store %s not found", id)
		}
		customers, err := s.listAllCustomers(ctx, s.clients.ClientFor(&store))
		if err != nil {
			return fmt.Errorf("failed to list customers for %s: %w", store.ShopDomain, err)
		}
		batches = append(batches, storeCustomers{store: store, customers: customers})
		total += len(customers)
	}

	tracker.setTotal(ctx, total)

	processed, failed := 0, 0
	for _, batch := range batches {
		for i := range batch.customers {
			if err := ctx.Err(); err != nil {
				return err
			}
			customer := &batch.customers[i]
			if _, err := s.aggregator.FindOrCreateUnifiedCustomer(op.GroupID, batch.store.ID, customer); err != nil {
				failed++
				logrus.WithFields(logrus.Fields{
					"operation_id": op.ID,
					"store":        batch.store.ShopDomain,
				}).WithError(err).Warn("Failed to unify customer")
			}
			processed++
			tracker.update(ctx, processed, failed)
		}
	}

	return nil
}

// runFullSync chains the three passes with fixed progress checkpoints; the
// sub-passes report their item counts but not their own percentages.
func (s *SyncService) runFullSync(ctx context.Context, op *models.SyncOperation, tracker *progressTracker) error {
	tracker.checkpoint(ctx, 0)
	sub := &progressTracker{svc: s, op: op, suppressed: true}

	if err := s.runInventorySync(ctx, op, sub); err != nil {
		return fmt.Errorf("inventory pass: %w", err)
	}
	tracker.checkpoint(ctx, 33)

	if op.SourceStoreID != nil {
		if err := s.runProductSync(ctx, op, sub); err != nil {
			return fmt.Errorf("product pass: %w", err)
		}
	}
	tracker.checkpoint(ctx, 66)

	if s.cfg.CustomerSyncEnabled {
		if err := s.runCustomerSync(ctx, op, sub); err != nil {
			return fmt.Errorf("customer pass: %w", err)
		}
	}
	tracker.checkpoint(ctx, 100)

	return nil
}

// --- helpers ---

func (s *SyncService) loadStoreProducts(ctx context.Context, storeID uuid.UUID) (*models.Store, []shopify.Product, error) {
	var store models.Store
	if err := s.db.First(&store, storeID).Error; err != nil {
		return nil, nil, fmt.Errorf("store %s not found", storeID)
	}
	products, err := s.listAllProducts(ctx, s.clients.ClientFor(&store))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list products for %s: %w", store.ShopDomain, err)
	}
	return &store, products, nil
}

func (s *SyncService) loadTargets(ctx context.Context, op *models.SyncOperation) ([]models.Store, map[uuid.UUID][]shopify.Product, error) {
	var targets []models.Store
	productsByStore := make(map[uuid.UUID][]shopify.Product)
	for _, id := range op.TargetUUIDs() {
		store, products, err := s.loadStoreProducts(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, *store)
		productsByStore[store.ID] = products
	}
	return targets, productsByStore, nil
}

func (s *SyncService) listAllProducts(ctx context.Context, client shopify.Client) ([]shopify.Product, error) {
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

func (s *SyncService) listAllCustomers(ctx context.Context, client shopify.Client) ([]shopify.Customer, error) {
	var all []shopify.Customer
	pageInfo := ""
	for {
		page, next, err := client.ListCustomers(ctx, pageInfo)
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

func (s *SyncService) involvedStoreIDs(op *models.SyncOperation) []uuid.UUID {
	ids := op.TargetUUIDs()
	if op.SourceStoreID != nil {
		ids = append(ids, *op.SourceStoreID)
	}
	return ids
}

func (s *SyncService) setStoresSyncStatus(storeIDs []uuid.UUID, status models.StoreSyncStatus) {
	if len(storeIDs) == 0 {
		return
	}
	if err := s.db.Model(&models.Store{}).Where("id IN ?", storeIDs).
		Update("sync_status", status).Error; err != nil {
		logrus.WithError(err).Warn("Failed to update store sync status")
	}
}

func (s *SyncService) failOperation(op *models.SyncOperation, code, message, item string) {
	now := time.Now()
	details := &models.SyncErrorDetails{Code: code, Message: message, Item: item}
	if err := s.db.Model(op).Updates(map[string]interface{}{
		"status":        models.OperationStatusFailed,
		"error_details": details,
		"completed_at":  now,
	}).Error; err != nil {
		logrus.WithField("operation_id", op.ID).WithError(err).
			Error("Failed to persist operation failure")
	}
	op.Status = models.OperationStatusFailed
	op.ErrorDetails = details
	op.CompletedAt = &now
}

func (s *SyncService) mirrorSnapshot(ctx context.Context, op *models.SyncOperation) {
	if err := s.progress.Store(ctx, snapshotOf(op)); err != nil {
		logrus.WithField("operation_id", op.ID).WithError(err).
			Debug("Failed to cache progress snapshot")
	}
}

func snapshotOf(op *models.SyncOperation) *cache.OperationSnapshot {
	return &cache.OperationSnapshot{
		OperationID:    op.ID.String(),
		Status:         string(op.Status),
		Progress:       op.Progress,
		ProcessedItems: op.ProcessedItems,
		TotalItems:     op.TotalItems,
		FailedItems:    op.FailedItems,
		UpdatedAt:      time.Now(),
	}
}

// matchInStore finds the candidate matching the source product, preferring
// an exact handle match before fuzzy scoring.
func matchInStore(product *shopify.Product, candidates []shopify.Product, threshold float64) *shopify.Product {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	for i := range candidates {
		if product.Handle != "" && candidates[i].Handle == product.Handle {
			return &candidates[i]
		}
	}

	sku := ""
	if v := product.FirstVariant(); v != nil {
		sku = v.SKU
	}

	var best *shopify.Product
	bestScore := threshold
	for i := range candidates {
		candidate := &candidates[i]
		variants := make(models.ProductVariants, 0, len(candidate.Variants))
		for _, v := range candidate.Variants {
			variants = append(variants, models.ProductVariant{SKU: v.SKU})
		}
		score, fields := ScoreProductSimilarity(product.Title, sku, product.Handle,
			candidate.Title, candidate.Handle, variants)
		if score > bestScore && len(fields) > 0 {
			best = candidate
			bestScore = score
		}
	}
	return best
}

// firstDataDivergence reports the first descriptive field where the two
// products disagree.
func firstDataDivergence(source, target *shopify.Product) (field, sourceValue, targetValue string, differs bool) {
	switch {
	case source.Title != target.Title:
		return "title", source.Title, target.Title, true
	case source.Vendor != target.Vendor:
		return "vendor", source.Vendor, target.Vendor, true
	case source.ProductType != target.ProductType:
		return "product_type", source.ProductType, target.ProductType, true
	case source.BodyHTML != target.BodyHTML:
		return "body_html", source.BodyHTML, target.BodyHTML, true
	case source.Tags != target.Tags:
		return "tags", source.Tags, target.Tags, true
	}
	return "", "", "", false
}

func severityForInventoryGap(source, target, tolerance int) models.ConflictSeverity {
	gap := source - target
	if gap < 0 {
		gap = -gap
	}
	if tolerance <= 0 {
		tolerance = 10
	}
	switch {
	case gap > tolerance*5:
		return models.SeverityHigh
	case gap > tolerance:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

func severityForPriceGap(source, target, tolerancePct float64) models.ConflictSeverity {
	if source == 0 {
		return models.SeverityHigh
	}
	gap := (source - target) / source * 100
	if gap < 0 {
		gap = -gap
	}
	if tolerancePct <= 0 {
		tolerancePct = 5.0
	}
	switch {
	case gap > tolerancePct*4:
		return models.SeverityHigh
	case gap > tolerancePct:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// progressTracker persists item counts and the monotonic percentage, and
// mirrors each step into the cache. Full sync suppresses the percentage and
// drives checkpoints itself.
type progressTracker struct {
	svc        *SyncService
	op         *models.SyncOperation
	suppressed bool
}

func (t *progressTracker) setTotal(ctx context.Context, total int) {
	t.op.TotalItems += total
	t.svc.db.Model(t.op).Update("total_items", t.op.TotalItems)
	t.svc.mirrorSnapshot(ctx, t.op)
}

func (t *progressTracker) update(ctx context.Context, processed, failed int) {
	t.op.ProcessedItems = processed
	t.op.FailedItems = failed

	updates := map[string]interface{}{
		"processed_items": processed,
		"failed_items":    failed,
	}
	if !t.suppressed && t.op.TotalItems > 0 {
		pct := processed * 100 / t.op.TotalItems
		if pct > 100 {
			pct = 100
		}
		if pct > t.op.Progress {
			t.op.Progress = pct
			updates["progress"] = pct
		}
	}

	t.svc.db.Model(t.op).Updates(updates)
	t.svc.mirrorSnapshot(ctx, t.op)
}

func (t *progressTracker) checkpoint(ctx context.Context, pct int) {
	if pct <= t.op.Progress {
		return
	}
	t.op.Progress = pct
	t.svc.db.Model(t.op).Update("progress", pct)
	t.svc.mirrorSnapshot(ctx, t.op)
}
