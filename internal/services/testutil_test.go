// internal/services/testutil_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/database"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.RunMigrations(db))
	return db
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		QueueSize:           10,
		Workers:             1,
		MatchThreshold:      0.8,
		ProgressTTLSecs:     60,
		InventoryTolerance:  10,
		PriceTolerancePct:   5.0,
		DefaultBatchSize:    50,
		CustomerSyncEnabled: true,
	}
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{Email: uuid.NewString() + "@example.com", Name: "Test User"}
	require.NoError(t, user.SetPassword("correct-horse-battery"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedGroup(t *testing.T, db *gorm.DB, ownerID uuid.UUID) *models.StoreGroup {
	t.Helper()
	group := &models.StoreGroup{
		Name:                    "Test Group " + uuid.NewString()[:8],
		OwnerID:                 ownerID,
		MaxStores:               10,
		DefaultSyncMode:         models.SyncModeBatch,
		DefaultConflictStrategy: models.StrategyAutoMasterWins,
		SyncInventory:           true,
		SyncCustomers:           true,
		SyncProducts:            true,
	}
	require.NoError(t, db.Create(group).Error)
	return group
}

func seedStore(t *testing.T, db *gorm.DB, ownerID uuid.UUID, domain string) *models.Store {
	t.Helper()
	store := &models.Store{
		ShopDomain:  domain,
		AccessToken: "shpat_" + uuid.NewString(),
		Name:        domain,
		OwnerID:     ownerID,
		SyncEnabled: true,
		SyncStatus:  models.StoreSyncStatusActive,
	}
	require.NoError(t, db.Create(store).Error)
	return store
}

func seedGroupedStore(t *testing.T, db *gorm.DB, ownerID, groupID uuid.UUID, domain string, isMaster bool) *models.Store {
	t.Helper()
	store := seedStore(t, db, ownerID, domain)
	require.NoError(t, db.Model(store).Updates(map[string]interface{}{
		"group_id":  groupID,
		"is_master": isMaster,
	}).Error)
	store.GroupID = &groupID
	store.IsMaster = isMaster
	return store
}

// fakeClient is an in-memory stand-in for a store's commerce API.
type fakeClient struct {
	mtx sync.Mutex

	shop      shopify.Shop
	products  []shopify.Product
	customers []shopify.Customer

	pingErr        error
	setLevelErr    error
	updateErr      error
	onInventorySet func(variantID int64)
	inventorySet   map[int64]int // variant id -> last pushed quantity
	created        []shopify.Product
	updated        []shopify.Product
	updatedVars    []shopify.Variant
	deleted        []int64
}

func newFakeClient(domain string) *fakeClient {
	return &fakeClient{
		shop:         shopify.Shop{ID: 1, Name: domain, Domain: domain},
		inventorySet: make(map[int64]int),
	}
}

func (c *fakeClient) GetShop(ctx context.Context) (*shopify.Shop, error) {
	if c.pingErr != nil {
		return nil, c.pingErr
	}
	shop := c.shop
	return &shop, nil
}

func (c *fakeClient) ListProducts(ctx context.Context, pageInfo string) ([]shopify.Product, string, error) {
	if c.pingErr != nil {
		return nil, "", c.pingErr
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make([]shopify.Product, len(c.products))
	copy(out, c.products)
	return out, "", nil
}

func (c *fakeClient) GetProduct(ctx context.Context, productID int64) (*shopify.Product, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for i := range c.products {
		if c.products[i].ID == productID {
			product := c.products[i]
			return &product, nil
		}
	}
	return nil, errors.New("product not found")
}

func (c *fakeClient) CreateProduct(ctx context.Context, product *shopify.Product) (*shopify.Product, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	created := *product
	created.ID = int64(len(c.products) + 1000)
	c.products = append(c.products, created)
	c.created = append(c.created, created)
	return &created, nil
}

func (c *fakeClient) UpdateProduct(ctx context.Context, product *shopify.Product) (*shopify.Product, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for i := range c.products {
		if c.products[i].ID == product.ID {
			c.products[i] = *product
		}
	}
	c.updated = append(c.updated, *product)
	return product, nil
}

func (c *fakeClient) DeleteProduct(ctx context.Context, productID int64) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.deleted = append(c.deleted, productID)
	for i := range c.products {
		if c.products[i].ID == productID {
			c.products = append(c.products[:i], c.products[i+1:]...)
			break
		}
	}
	return nil
}

func (c *fakeClient) UpdateVariant(ctx context.Context, variant *shopify.Variant) (*shopify.Variant, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.updatedVars = append(c.updatedVars, *variant)
	return variant, nil
}

func (c *fakeClient) SetInventoryLevel(ctx context.Context, variantID int64, quantity int) error {
	if c.setLevelErr != nil {
		return c.setLevelErr
	}
	if c.onInventorySet != nil {
		c.onInventorySet(variantID)
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.inventorySet[variantID] = quantity
	for i := range c.products {
		for j := range c.products[i].Variants {
			if c.products[i].Variants[j].ID == variantID {
				c.products[i].Variants[j].InventoryQuantity = quantity
			}
		}
	}
	return nil
}

func (c *fakeClient) ListCustomers(ctx context.Context, pageInfo string) ([]shopify.Customer, string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make([]shopify.Customer, len(c.customers))
	copy(out, c.customers)
	return out, "", nil
}

// fakeClientFactory hands out one fakeClient per shop domain.
type fakeClientFactory struct {
	mtx     sync.Mutex
	clients map[string]*fakeClient
}

func newFakeClientFactory() *fakeClientFactory {
	return &fakeClientFactory{clients: make(map[string]*fakeClient)}
}

func (f *fakeClientFactory) ClientFor(store *models.Store) shopify.Client {
	return f.client(store.ShopDomain)
}

func (f *fakeClientFactory) client(domain string) *fakeClient {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if c, ok := f.clients[domain]; ok {
		return c
	}
	c := newFakeClient(domain)
	f.clients[domain] = c
	return c
}

func productWithVariant(id int64, title, handle, sku string, price string, qty int) shopify.Product {
	return shopify.Product{
		ID:          id,
		Title:       title,
		Handle:      handle,
		Vendor:      "Acme",
		ProductType: "Widget",
		UpdatedAt:   time.Now(),
		Variants: []shopify.Variant{{
			ID:                id * 10,
			ProductID:         id,
			Title:             "Default",
			SKU:               sku,
			Price:             price,
			InventoryQuantity: qty,
		}},
	}
}
