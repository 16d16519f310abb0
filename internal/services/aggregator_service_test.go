// internal/services/aggregator_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
)

func TestCreateUnifiedInventoryAggregatesTotals(t *testing.T) {
	db := newTestDB(t)
	svc := NewAggregatorService(db)
	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	storeA := seedGroupedStore(t, db, owner.ID, group.ID, "a.myshopify.com", true)
	storeB := seedGroupedStore(t, db, owner.ID, group.ID, "b.myshopify.com", false)

	inventory, err := svc.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID: group.ID,
		Title:   "Blue Widget",
		Vendor:  "Acme",
		Tags:    []string{"widgets", "blue"},
		Variants: models.ProductVariants{
			{Title: "Default", SKU: "BW-1", Price: 19.99, InventoryQuantity: 12},
		},
		Mappings: []StoreInventoryInput{
			{StoreID: storeA.ID, ExternalProductID: "101", LocalInventory: 12},
			{StoreID: storeB.ID, ExternalProductID: "201", LocalInventory: 8},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "blue-widget", inventory.Handle)
	assert.Equal(t, 20, inventory.TotalInventory)
	assert.Equal(t, models.EntitySyncStatusSynced, inventory.SyncStatus)
	assert.Len(t, inventory.Mappings, 2)
	require.NotNil(t, inventory.LastAggregatedAt)
}

func TestApplyInventoryDeltaKeepsTotalsConsistent(t *testing.T) {
	db := newTestDB(t)
	svc := NewAggregatorService(db)
	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	storeA := seedGroupedStore(t, db, owner.ID, group.ID, "a.myshopify.com", true)
	storeB := seedGroupedStore(t, db, owner.ID, group.ID, "b.myshopify.com", false)

	inventory, err := svc.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID: group.ID,
		Title:   "Red Widget",
		Mappings: []StoreInventoryInput{
			{StoreID: storeA.ID, ExternalProductID: "301", LocalInventory: 10},
			{StoreID: storeB.ID, ExternalProductID: "302", LocalInventory: 5},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyInventoryDelta(inventory.ID, storeA.ID, -3))
	require.NoError(t, svc.ApplyInventoryDelta(inventory.ID, storeB.ID, 7))

	reloaded, err := svc.GetUnifiedInventory(inventory.ID)
	require.NoError(t, err)
	assert.Equal(t, 19, reloaded.TotalInventory)

	sum := 0
	for _, mapping := range reloaded.Mappings {
		sum += mapping.LocalInventory
	}
	assert.Equal(t, reloaded.TotalInventory, sum)

	assert.Error(t, svc.ApplyInventoryDelta(inventory.ID, owner.ID, 1))
}

func TestRecordStoreInventoryUpsertsByDelta(t *testing.T) {
	db := newTestDB(t)
	svc := NewAggregatorService(db)
	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	storeA := seedGroupedStore(t, db, owner.ID, group.ID, "a.myshopify.com", true)
	storeB := seedGroupedStore(t, db, owner.ID, group.ID, "b.myshopify.com", false)

	inventory, err := svc.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID: group.ID,
		Title:   "Green Widget",
		Mappings: []StoreInventoryInput{
			{StoreID: storeA.ID, ExternalProductID: "401", LocalInventory: 6},
		},
	})
	require.NoError(t, err)

	// New mapping adds its quantity
	require.NoError(t, svc.RecordStoreInventory(inventory.ID, storeB.ID, "402", "4020", 4))
	reloaded, err := svc.GetUnifiedInventory(inventory.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.TotalInventory)

	// Existing mapping moves the total by the difference only
	require.NoError(t, svc.RecordStoreInventory(inventory.ID, storeB.ID, "402", "4020", 1))
	reloaded, err = svc.GetUnifiedInventory(inventory.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.TotalInventory)
}

func TestFindSimilarProductsScoring(t *testing.T) {
	db := newTestDB(t)
	svc := NewAggregatorService(db)
	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	store := seedGroupedStore(t, db, owner.ID, group.ID, "a.myshopify.com", true)

	_, err := svc.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID:  group.ID,
		Title:    "Classic Leather Wallet",
		Variants: models.ProductVariants{{SKU: "CLW-01", Price: 49.0}},
		Mappings: []StoreInventoryInput{{StoreID: store.ID, ExternalProductID: "501", LocalInventory: 3}},
	})
	require.NoError(t, err)
	_, err = svc.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID:  group.ID,
		Title:    "Stainless Water Bottle",
		Variants: models.ProductVariants{{SKU: "SWB-01", Price: 25.0}},
		Mappings: []StoreInventoryInput{{StoreID: store.ID, ExternalProductID: "502", LocalInventory: 9}},
	})
	require.NoError(t, err)

	// Exact duplicate scores 1.0 with all fields matched
	matches, err := svc.FindSimilarProducts(group.ID, "Classic Leather Wallet", "CLW-01", 0.8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)
	assert.ElementsMatch(t, []string{"title", "sku", "handle"}, matches[0].MatchedFields)

	// Near-identical title still clears the bar
	matches, err = svc.FindSimilarProducts(group.ID, "Classic Leather Wallets", "", 0.8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Classic Leather Wallet", matches[0].Inventory.Title)

	// Unrelated titles never match
	matches, err = svc.FindSimilarProducts(group.ID, "Ceramic Coffee Mug", "", 0.8)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScoreProductSimilarityRequiresMatchedField(t *testing.T) {
	// Same SKU alone contributes 0.4 of 1.0 applicable weight, below any
	// sane threshold, and title/handle stay unmatched.
	score, fields := ScoreProductSimilarity(
		"Alpha Product", "SKU-1", "alpha-product",
		"Totally Different Name Here", "totally-different-name-here",
		models.ProductVariants{{SKU: "SKU-1"}},
	)
	assert.Less(t, score, 0.8)
	assert.Equal(t, []string{"sku"}, fields)
}

func TestFindOrCreateUnifiedCustomer(t *testing.T) {
	db := newTestDB(t)
	svc := NewAggregatorService(db)
	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	storeA := seedGroupedStore(t, db, owner.ID, group.ID, "a.myshopify.com", true)
	storeB := seedGroupedStore(t, db, owner.ID, group.ID, "b.myshopify.com", false)

	first, err := svc.FindOrCreateUnifiedCustomer(group.ID, storeA.ID, &shopify.Customer{
		ID: 9001, Email: "jo@example.com", FirstName: "Jo", TotalSpent: "100.50", OrdersCount: 3,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.50, first.TotalSpent, 0.001)
	assert.Equal(t, 3, first.TotalOrders)

	// Same email from a second store folds into the same unified row
	second, err := svc.FindOrCreateUnifiedCustomer(group.ID, storeB.ID, &shopify.Customer{
		ID: 9002, Email: "jo@example.com", TotalSpent: "49.50", OrdersCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, 150.00, second.TotalSpent, 0.001)
	assert.Equal(t, 5, second.TotalOrders)
	assert.Len(t, second.Mappings, 2)

	// Updated store totals adjust by delta, not by re-adding
	third, err := svc.FindOrCreateUnifiedCustomer(group.ID, storeB.ID, &shopify.Customer{
		ID: 9002, Email: "jo@example.com", TotalSpent: "60.00", OrdersCount: 3,
	})
	require.NoError(t, err)
	assert.InDelta(t, 160.50, third.TotalSpent, 0.001)
	assert.Equal(t, 6, third.TotalOrders)
}

func TestGenerateMultiStoreAnalytics(t *testing.T) {
	db := newTestDB(t)
	svc := NewAggregatorService(db)
	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	store := seedGroupedStore(t, db, owner.ID, group.ID, "a.myshopify.com", true)

	_, err := svc.CreateUnifiedInventory(&CreateUnifiedInventoryRequest{
		GroupID:  group.ID,
		Title:    "Priced Widget",
		Variants: models.ProductVariants{{SKU: "PW-1", Price: 10.0}},
		Mappings: []StoreInventoryInput{{StoreID: store.ID, ExternalProductID: "601", LocalInventory: 5}},
	})
	require.NoError(t, err)

	now := time.Now()
	started := now.Add(-time.Minute)
	completed := now.Add(-30 * time.Second)
	require.NoError(t, db.Create(&models.SyncOperation{
		GroupID:     group.ID,
		Type:        models.OperationTypeInventorySync,
		Status:      models.OperationStatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
	}).Error)
	require.NoError(t, db.Create(&models.SyncOperation{
		GroupID: group.ID,
		Type:    models.OperationTypeProductSync,
		Status:  models.OperationStatusFailed,
	}).Error)

	analytics, err := svc.GenerateMultiStoreAnalytics(group.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(1), analytics.StoreCount)
	assert.Equal(t, int64(1), analytics.UnifiedProducts)
	assert.Equal(t, int64(5), analytics.TotalInventory)
	assert.InDelta(t, 50.0, analytics.InventoryValuation, 0.001)
	assert.Equal(t, int64(2), analytics.SyncOperations)
	assert.InDelta(t, 0.5, analytics.SyncSuccessRate, 0.001)
	assert.InDelta(t, 30.0, analytics.AvgSyncDurationSec, 0.5)
}
