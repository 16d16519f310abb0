// internal/services/sync_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
)

type syncFixture struct {
	db      *gorm.DB
	factory *fakeClientFactory
	stores  *StoreService
	sync    *SyncService
	owner   *models.User
	group   *models.StoreGroup
	master  *models.Store
	member  *models.Store
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	db := newTestDB(t)
	factory := newFakeClientFactory()
	cfg := testSyncConfig()

	storeService := NewStoreService(db, factory, cfg)
	aggregator := NewAggregatorService(db)
	conflicts := NewConflictService(db, storeService, factory, nil, cfg)
	syncService := NewSyncService(db, storeService, aggregator, conflicts, factory, nil, cfg)
	syncService.SetDispatcher(NewDispatcher(syncService, cfg.QueueSize, cfg.Workers))

	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	master := seedGroupedStore(t, db, owner.ID, group.ID, "master.myshopify.com", true)
	member := seedGroupedStore(t, db, owner.ID, group.ID, "member.myshopify.com", false)

	return &syncFixture{
		db:      db,
		factory: factory,
		stores:  storeService,
		sync:    syncService,
		owner:   owner,
		group:   group,
		master:  master,
		member:  member,
	}
}

func (f *syncFixture) initiate(t *testing.T, opType models.OperationType) *models.SyncOperation {
	t.Helper()
	op, err := f.sync.InitiateSyncOperation(f.owner.ID, &InitiateSyncRequest{
		GroupID: f.group.ID,
		Type:    opType,
	})
	require.NoError(t, err)
	return op
}

func (f *syncFixture) reload(t *testing.T, id uuid.UUID) *models.SyncOperation {
	t.Helper()
	var op models.SyncOperation
	require.NoError(t, f.db.First(&op, id).Error)
	return &op
}

func TestInitiateSyncDefaultsToMasterAndMembers(t *testing.T) {
	f := newSyncFixture(t)

	op := f.initiate(t, models.OperationTypeInventorySync)

	require.NotNil(t, op.SourceStoreID)
	assert.Equal(t, f.master.ID, *op.SourceStoreID)
	assert.Equal(t, []uuid.UUID{f.member.ID}, op.TargetUUIDs())
	assert.Equal(t, models.OperationStatusPending, op.Status)
	assert.Equal(t, models.SyncModeBatch, op.Mode)
}

func TestInitiateSyncRejectsUnknownType(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.sync.InitiateSyncOperation(f.owner.ID, &InitiateSyncRequest{
		GroupID: f.group.ID,
		Type:    "rebuild_everything",
	})
	assert.Error(t, err)
}

func TestInventorySyncPushesMasterLevels(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 25),
	}
	f.factory.client("member.myshopify.com").products = []shopify.Product{
		productWithVariant(2, "Blue Widget", "blue-widget", "BW-1", "19.99", 10),
	}

	op := f.initiate(t, models.OperationTypeInventorySync)
	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 1, done.ProcessedItems)
	assert.Zero(t, done.FailedItems)

	// The member store received the master's quantity on its own variant
	assert.Equal(t, 25, f.factory.client("member.myshopify.com").inventorySet[20])

	// Stores come back to active with a fresh last_sync_at
	var member models.Store
	require.NoError(t, f.db.First(&member, f.member.ID).Error)
	assert.Equal(t, models.StoreSyncStatusActive, member.SyncStatus)
	assert.NotNil(t, member.LastSyncAt)

	// The unified entity reflects both stores
	var unified models.MultiStoreInventory
	require.NoError(t, f.db.Preload("Mappings").
		Where("group_id = ? AND handle = ?", f.group.ID, "blue-widget").
		First(&unified).Error)
	assert.Len(t, unified.Mappings, 2)
	assert.Equal(t, 50, unified.TotalInventory)
}

func TestInventorySyncProgressNeverDecreases(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 25),
		productWithVariant(2, "Red Widget", "red-widget", "RW-1", "9.99", 30),
		productWithVariant(3, "Green Widget", "green-widget", "GW-1", "4.99", 12),
	}
	f.factory.client("member.myshopify.com").products = []shopify.Product{
		productWithVariant(4, "Blue Widget", "blue-widget", "BW-1", "19.99", 1),
		productWithVariant(5, "Red Widget", "red-widget", "RW-1", "9.99", 2),
		productWithVariant(6, "Green Widget", "green-widget", "GW-1", "4.99", 3),
	}

	op := f.initiate(t, models.OperationTypeInventorySync)

	// Sample the persisted percentage in the middle of every push
	var samples []int
	f.factory.client("member.myshopify.com").onInventorySet = func(int64) {
		samples = append(samples, f.reload(t, op.ID).Progress)
	}

	f.sync.Execute(context.Background(), op.ID)

	require.GreaterOrEqual(t, len(samples), 2)
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i], samples[i-1])
	}
	assert.Less(t, samples[len(samples)-1], 100)
	assert.Equal(t, 100, f.reload(t, op.ID).Progress)
}

func TestInventorySyncEmitsConflictOnPushFailure(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 100),
	}
	memberClient := f.factory.client("member.myshopify.com")
	memberClient.products = []shopify.Product{
		productWithVariant(2, "Blue Widget", "blue-widget", "BW-1", "19.99", 10),
	}
	memberClient.setLevelErr = errors.New("422 variant locked")

	op := f.initiate(t, models.OperationTypeInventorySync)
	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCompleted, done.Status)
	assert.Equal(t, 1, done.FailedItems)

	var conflicts []models.ConflictResolution
	require.NoError(t, f.db.Where("group_id = ?", f.group.ID).Find(&conflicts).Error)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTypeInventoryMismatch, conflicts[0].Type)
	assert.Equal(t, models.SeverityHigh, conflicts[0].Severity) // 90 unit gap
	require.NotNil(t, conflicts[0].Details.Inventory)
	assert.Equal(t, 100, conflicts[0].Details.Inventory.SourceQuantity)
	assert.Equal(t, 10, conflicts[0].Details.Inventory.TargetQuantity)
}

func TestPeerInventorySyncConvergesOnFloorAverage(t *testing.T) {
	f := newSyncFixture(t)

	// Demote the master so the group has no source of truth
	require.NoError(t, f.db.Model(&models.Store{}).Where("group_id = ?", f.group.ID).
		Update("is_master", false).Error)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 10),
	}
	f.factory.client("member.myshopify.com").products = []shopify.Product{
		productWithVariant(2, "Blue Widget", "blue-widget", "BW-1", "19.99", 5),
	}

	op, err := f.sync.InitiateSyncOperation(f.owner.ID, &InitiateSyncRequest{
		GroupID:        f.group.ID,
		Type:           models.OperationTypeInventorySync,
		TargetStoreIDs: []uuid.UUID{f.master.ID, f.member.ID},
	})
	require.NoError(t, err)
	require.Nil(t, op.SourceStoreID)

	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCompleted, done.Status)

	// floor((10+5)/2) = 7, pushed to both diverging stores
	assert.Equal(t, 7, f.factory.client("master.myshopify.com").inventorySet[10])
	assert.Equal(t, 7, f.factory.client("member.myshopify.com").inventorySet[20])
}

func TestProductSyncCreatesMissingProducts(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 25),
	}

	op := f.initiate(t, models.OperationTypeProductSync)
	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCompleted, done.Status)

	created := f.factory.client("member.myshopify.com").created
	require.Len(t, created, 1)
	assert.Equal(t, "Blue Widget", created[0].Title)
	assert.Equal(t, "BW-1", created[0].Variants[0].SKU)
}

func TestCustomerSyncUnifiesAcrossStores(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").customers = []shopify.Customer{
		{ID: 1, Email: "jo@example.com", FirstName: "Jo", TotalSpent: "30.00", OrdersCount: 1},
	}
	f.factory.client("member.myshopify.com").customers = []shopify.Customer{
		{ID: 2, Email: "jo@example.com", TotalSpent: "20.00", OrdersCount: 1},
		{ID: 3, Email: "sam@example.com", TotalSpent: "5.00", OrdersCount: 1},
	}

	op := f.initiate(t, models.OperationTypeCustomerSync)
	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCompleted, done.Status)
	assert.Equal(t, 3, done.ProcessedItems)

	var count int64
	f.db.Model(&models.UnifiedCustomer{}).Where("group_id = ?", f.group.ID).Count(&count)
	assert.Equal(t, int64(2), count)

	var jo models.UnifiedCustomer
	require.NoError(t, f.db.Where("group_id = ? AND email = ?", f.group.ID, "jo@example.com").
		First(&jo).Error)
	assert.InDelta(t, 50.0, jo.TotalSpent, 0.001)
	assert.Equal(t, 2, jo.TotalOrders)
}

func TestFullSyncRunsAllPasses(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 25),
	}
	f.factory.client("master.myshopify.com").customers = []shopify.Customer{
		{ID: 1, Email: "jo@example.com", TotalSpent: "30.00", OrdersCount: 1},
	}

	op := f.initiate(t, models.OperationTypeFullSync)
	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)

	var customers int64
	f.db.Model(&models.UnifiedCustomer{}).Where("group_id = ?", f.group.ID).Count(&customers)
	assert.Equal(t, int64(1), customers)
	require.Len(t, f.factory.client("member.myshopify.com").created, 1)
}

func TestSyncFailureRecordsErrorDetails(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").pingErr = errors.New("503 service unavailable")

	op := f.initiate(t, models.OperationTypeInventorySync)
	f.sync.Execute(context.Background(), op.ID)

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusFailed, done.Status)
	require.NotNil(t, done.ErrorDetails)
	assert.Equal(t, "SYNC_FAILED", done.ErrorDetails.Code)
	assert.Contains(t, done.ErrorDetails.Message, "503")
	require.NotNil(t, done.CompletedAt)

	var member models.Store
	require.NoError(t, f.db.First(&member, f.member.ID).Error)
	assert.Equal(t, models.StoreSyncStatusError, member.SyncStatus)
}

func TestCancelPendingOperation(t *testing.T) {
	f := newSyncFixture(t)

	op := f.initiate(t, models.OperationTypeInventorySync)
	require.NoError(t, f.sync.CancelOperation(op.ID))

	done := f.reload(t, op.ID)
	assert.Equal(t, models.OperationStatusCancelled, done.Status)

	// A worker picking up the cancelled operation leaves it untouched
	f.sync.Execute(context.Background(), op.ID)
	assert.Equal(t, models.OperationStatusCancelled, f.reload(t, op.ID).Status)

	// Terminal operations cannot be cancelled twice
	assert.ErrorIs(t, f.sync.CancelOperation(op.ID), ErrOperationTerminal)
}

func TestExecuteWithCancelledContextMarksCancelled(t *testing.T) {
	f := newSyncFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "19.99", 25),
	}

	op := f.initiate(t, models.OperationTypeInventorySync)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.sync.Execute(ctx, op.ID)

	assert.Equal(t, models.OperationStatusCancelled, f.reload(t, op.ID).Status)
}

func TestGetSyncOperationStatusFallsBackToDatabase(t *testing.T) {
	f := newSyncFixture(t)

	op := f.initiate(t, models.OperationTypeInventorySync)

	snapshot, err := f.sync.GetSyncOperationStatus(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, op.ID.String(), snapshot.OperationID)
	assert.Equal(t, string(models.OperationStatusPending), snapshot.Status)

	_, err = f.sync.GetSyncOperationStatus(context.Background(), uuid.New())
	assert.Error(t, err)
}
