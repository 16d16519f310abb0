// internal/services/conflict_service_test.go
package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

type conflictFixture struct {
	db      *gorm.DB
	factory *fakeClientFactory
	svc     *ConflictService
	owner   *models.User
	group   *models.StoreGroup
	master  *models.Store
	member  *models.Store
}

func newConflictFixture(t *testing.T) *conflictFixture {
	t.Helper()

	db := newTestDB(t)
	factory := newFakeClientFactory()
	storeService := NewStoreService(db, factory, testSyncConfig())
	svc := NewConflictService(db, storeService, factory, nil, testSyncConfig())

	owner := seedUser(t, db)
	group := seedGroup(t, db, owner.ID)
	master := seedGroupedStore(t, db, owner.ID, group.ID, "master.myshopify.com", true)
	member := seedGroupedStore(t, db, owner.ID, group.ID, "member.myshopify.com", false)

	return &conflictFixture{
		db:      db,
		factory: factory,
		svc:     svc,
		owner:   owner,
		group:   group,
		master:  master,
		member:  member,
	}
}

func (f *conflictFixture) seedInventoryConflict(t *testing.T, sourceQty, targetQty int) *models.ConflictResolution {
	t.Helper()
	conflict, _, err := f.svc.DetectConflict(nil, f.group.ID, models.ConflictTypeInventoryMismatch,
		f.master.ID, f.member.ID, models.ConflictDetails{
			Inventory: &models.InventoryConflictDetails{
				ExternalProductID: "2",
				SourceVariantID:   10,
				TargetVariantID:   20,
				SourceQuantity:    sourceQty,
				TargetQuantity:    targetQty,
			},
		}, models.SeverityMedium)
	require.NoError(t, err)
	return conflict
}

func TestDetectConflictDeduplicatesOpenConflicts(t *testing.T) {
	f := newConflictFixture(t)

	first := f.seedInventoryConflict(t, 30, 10)
	second := f.seedInventoryConflict(t, 35, 12) // same product, new observation

	assert.Equal(t, first.ID, second.ID)

	var count int64
	f.db.Model(&models.ConflictResolution{}).Count(&count)
	assert.Equal(t, int64(1), count)

	// A resolved conflict no longer blocks a fresh detection
	_, err := f.svc.IgnoreConflict(first.ID, "tester")
	require.NoError(t, err)
	third := f.seedInventoryConflict(t, 40, 5)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestResolveConflictMasterWinsPushesToLoser(t *testing.T) {
	f := newConflictFixture(t)
	conflict := f.seedInventoryConflict(t, 30, 10)

	resolved, err := f.svc.ResolveConflict(context.Background(), conflict.ID, &ResolveConflictRequest{
		Strategy:   models.StrategyAutoMasterWins,
		ResolvedBy: "ops@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ConflictStatusResolved, resolved.Status)
	assert.Equal(t, models.StrategyAutoMasterWins, resolved.Strategy)
	assert.Equal(t, "ops@example.com", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, f.master.ID.String(), resolved.ResolutionData["winner_store_id"])

	// The member store's variant was set to the master's quantity
	assert.Equal(t, 30, f.factory.client("member.myshopify.com").inventorySet[20])
	assert.Empty(t, f.factory.client("master.myshopify.com").inventorySet)
}

func TestResolveConflictRejectsNonPending(t *testing.T) {
	f := newConflictFixture(t)
	conflict := f.seedInventoryConflict(t, 30, 10)

	req := &ResolveConflictRequest{Strategy: models.StrategyManual, ResolvedBy: "tester"}
	_, err := f.svc.ResolveConflict(context.Background(), conflict.ID, req)
	require.NoError(t, err)

	_, err = f.svc.ResolveConflict(context.Background(), conflict.ID, req)
	assert.ErrorIs(t, err, ErrConflictNotPending)

	_, err = f.svc.IgnoreConflict(conflict.ID, "tester")
	assert.ErrorIs(t, err, ErrConflictNotPending)
}

func TestResolveConflictConcurrentResolversSingleWinner(t *testing.T) {
	f := newConflictFixture(t)
	conflict := f.seedInventoryConflict(t, 30, 10)

	req := &ResolveConflictRequest{Strategy: models.StrategyManual, ResolvedBy: "tester"}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ResolveConflict(context.Background(), conflict.ID, req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Exactly one caller wins the pending -> resolved transition
	resolved, rejected := 0, 0
	for err := range errs {
		if err == nil {
			resolved++
			continue
		}
		require.ErrorIs(t, err, ErrConflictNotPending)
		rejected++
	}
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, rejected)
}

func TestResolveConflictMergeInventoryAveragesBothStores(t *testing.T) {
	f := newConflictFixture(t)
	conflict := f.seedInventoryConflict(t, 31, 10)

	resolved, err := f.svc.ResolveConflict(context.Background(), conflict.ID, &ResolveConflictRequest{
		Strategy:   models.StrategyAutoMerge,
		ResolvedBy: "ops@example.com",
	})
	require.NoError(t, err)

	// floor((31+10)/2) = 20 pushed to both sides
	assert.EqualValues(t, 20, resolved.ResolutionData["merged_quantity"])
	assert.Equal(t, 20, f.factory.client("master.myshopify.com").inventorySet[10])
	assert.Equal(t, 20, f.factory.client("member.myshopify.com").inventorySet[20])
}

func TestResolveConflictMergePriceTakesHigher(t *testing.T) {
	f := newConflictFixture(t)

	conflict, _, err := f.svc.DetectConflict(nil, f.group.ID, models.ConflictTypePriceConflict,
		f.master.ID, f.member.ID, models.ConflictDetails{
			Price: &models.PriceConflictDetails{
				ExternalProductID: "2",
				SourceVariantID:   10,
				TargetVariantID:   20,
				SourcePrice:       19.99,
				TargetPrice:       24.99,
			},
		}, models.SeverityMedium)
	require.NoError(t, err)

	_, err = f.svc.ResolveConflict(context.Background(), conflict.ID, &ResolveConflictRequest{
		Strategy:   models.StrategyAutoMerge,
		ResolvedBy: "ops@example.com",
	})
	require.NoError(t, err)

	masterVars := f.factory.client("master.myshopify.com").updatedVars
	memberVars := f.factory.client("member.myshopify.com").updatedVars
	require.Len(t, masterVars, 1)
	require.Len(t, memberVars, 1)
	assert.Equal(t, "24.99", masterVars[0].Price)
	assert.Equal(t, "24.99", memberVars[0].Price)
}

func TestResolveConflictLatestWinsUsesProductTimestamps(t *testing.T) {
	f := newConflictFixture(t)

	masterProduct := productWithVariant(1, "Old Title", "widget", "W-1", "10.00", 5)
	memberProduct := productWithVariant(2, "New Title", "widget", "W-1", "10.00", 5)
	memberProduct.UpdatedAt = masterProduct.UpdatedAt.Add(1000)

	f.factory.client("master.myshopify.com").products = []shopify.Product{masterProduct}
	f.factory.client("member.myshopify.com").products = []shopify.Product{memberProduct}

	conflict, _, err := f.svc.DetectConflict(nil, f.group.ID, models.ConflictTypeDataConflict,
		f.master.ID, f.member.ID, models.ConflictDetails{
			Data: &models.DataConflictDetails{
				SourceProductID: 1,
				TargetProductID: 2,
				Field:           "title",
				SourceValue:     "Old Title",
				TargetValue:     "New Title",
			},
		}, models.SeverityLow)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveConflict(context.Background(), conflict.ID, &ResolveConflictRequest{
		Strategy:   models.StrategyAutoLatestWins,
		ResolvedBy: "ops@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, f.member.ID.String(), resolved.ResolutionData["winner_store_id"])

	// The stale master side was overwritten with the fresher title
	updated := f.factory.client("master.myshopify.com").updated
	require.Len(t, updated, 1)
	assert.Equal(t, "New Title", updated[0].Title)
}

func TestResolveConflictLatestWinsOnInventoryUsesProductTimestamps(t *testing.T) {
	f := newConflictFixture(t)

	masterProduct := productWithVariant(1, "Widget", "widget", "W-1", "10.00", 30)
	memberProduct := productWithVariant(2, "Widget", "widget", "W-1", "10.00", 10)
	memberProduct.UpdatedAt = masterProduct.UpdatedAt.Add(time.Hour)

	f.factory.client("master.myshopify.com").products = []shopify.Product{masterProduct}
	f.factory.client("member.myshopify.com").products = []shopify.Product{memberProduct}

	conflict, _, err := f.svc.DetectConflict(nil, f.group.ID, models.ConflictTypeInventoryMismatch,
		f.master.ID, f.member.ID, models.ConflictDetails{
			Inventory: &models.InventoryConflictDetails{
				ExternalProductID: "2",
				SourceProductID:   1,
				SourceVariantID:   10,
				TargetVariantID:   20,
				SourceQuantity:    30,
				TargetQuantity:    10,
			},
		}, models.SeverityMedium)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveConflict(context.Background(), conflict.ID, &ResolveConflictRequest{
		Strategy:   models.StrategyAutoLatestWins,
		ResolvedBy: "ops@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, f.member.ID.String(), resolved.ResolutionData["winner_store_id"])

	// The fresher member quantity lands on the stale master variant
	assert.Equal(t, 10, f.factory.client("master.myshopify.com").inventorySet[10])
	assert.Empty(t, f.factory.client("member.myshopify.com").inventorySet)
}

func TestResolveDuplicateMergeVariants(t *testing.T) {
	f := newConflictFixture(t)

	primary := productWithVariant(1, "Widget", "widget", "W-1", "10.00", 5)
	duplicate := productWithVariant(2, "Widget", "widget", "W-2", "10.00", 3)
	masterClient := f.factory.client("master.myshopify.com")
	masterClient.products = []shopify.Product{primary, duplicate}

	conflict, _, err := f.svc.DetectConflict(nil, f.group.ID, models.ConflictTypeDuplicateProduct,
		f.master.ID, f.master.ID, models.ConflictDetails{
			Duplicate: &models.DuplicateConflictDetails{
				ProductID:          1,
				DuplicateProductID: 2,
				Title:              "Widget",
			},
		}, models.SeverityMedium)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveConflict(context.Background(), conflict.ID, &ResolveConflictRequest{
		Strategy:        models.StrategyManual,
		ResolvedBy:      "ops@example.com",
		DuplicateAction: models.DuplicateActionMergeVariants,
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.DuplicateActionMergeVariants), resolved.ResolutionData["action"])

	// The duplicate's variants moved onto the primary before deletion
	require.Len(t, masterClient.updated, 1)
	assert.Len(t, masterClient.updated[0].Variants, 2)
	assert.Equal(t, []int64{2}, masterClient.deleted)
}

func TestResolveBatchConflictsContinuesPastFailures(t *testing.T) {
	f := newConflictFixture(t)

	good := f.seedInventoryConflict(t, 30, 10)
	missing := uuid.New()

	result := f.svc.ResolveBatchConflicts(context.Background(),
		[]uuid.UUID{missing, good.ID},
		&ResolveConflictRequest{Strategy: models.StrategyManual, ResolvedBy: "tester"})

	assert.Equal(t, []uuid.UUID{good.ID}, result.Resolved)
	assert.Contains(t, result.Failed, missing)
}

func TestGetConflictsFilters(t *testing.T) {
	f := newConflictFixture(t)

	f.seedInventoryConflict(t, 30, 10)
	_, _, err := f.svc.DetectConflict(nil, f.group.ID, models.ConflictTypePriceConflict,
		f.master.ID, f.member.ID, models.ConflictDetails{
			Price: &models.PriceConflictDetails{ExternalProductID: "9", SourcePrice: 1, TargetPrice: 2},
		}, models.SeverityLow)
	require.NoError(t, err)

	all, total, err := f.svc.GetConflicts(ConflictFilter{GroupID: f.group.ID}, utils.PaginationParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	priced, total, err := f.svc.GetConflicts(ConflictFilter{
		GroupID: f.group.ID,
		Type:    models.ConflictTypePriceConflict,
	}, utils.PaginationParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, priced, 1)
	assert.Equal(t, models.ConflictTypePriceConflict, priced[0].Type)
}

func TestScanGroupForConflicts(t *testing.T) {
	f := newConflictFixture(t)

	// Same product diverges in inventory (gap 40 > 10) and price (50% > 5%)
	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Blue Widget", "blue-widget", "BW-1", "20.00", 50),
	}
	f.factory.client("member.myshopify.com").products = []shopify.Product{
		productWithVariant(2, "Blue Widget", "blue-widget", "BW-1", "10.00", 10),
	}

	detected, err := f.svc.ScanGroupForConflicts(context.Background(), f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detected)

	var types []models.ConflictType
	var conflicts []models.ConflictResolution
	require.NoError(t, f.db.Where("group_id = ?", f.group.ID).Find(&conflicts).Error)
	for _, c := range conflicts {
		types = append(types, c.Type)
	}
	assert.ElementsMatch(t, []models.ConflictType{
		models.ConflictTypeInventoryMismatch,
		models.ConflictTypePriceConflict,
	}, types)

	// Re-scanning with open conflicts detects nothing new
	detected, err = f.svc.ScanGroupForConflicts(context.Background(), f.group.ID)
	require.NoError(t, err)
	assert.Zero(t, detected)
}

func TestScanGroupFlagsDuplicatesWithinStore(t *testing.T) {
	f := newConflictFixture(t)

	f.factory.client("master.myshopify.com").products = []shopify.Product{
		productWithVariant(1, "Classic Leather Wallet", "classic-leather-wallet", "CLW-1", "49.00", 5),
		productWithVariant(2, "Classic Leather Wallet", "classic-leather-wallet-1", "CLW-1", "49.00", 5),
	}

	_, err := f.svc.ScanGroupForConflicts(context.Background(), f.group.ID)
	require.NoError(t, err)

	var duplicates []models.ConflictResolution
	require.NoError(t, f.db.Where("type = ?", models.ConflictTypeDuplicateProduct).
		Find(&duplicates).Error)
	require.Len(t, duplicates, 1)
	require.NotNil(t, duplicates[0].Details.Duplicate)
	assert.Equal(t, int64(1), duplicates[0].Details.Duplicate.ProductID)
	assert.Equal(t, int64(2), duplicates[0].Details.Duplicate.DuplicateProductID)
}
