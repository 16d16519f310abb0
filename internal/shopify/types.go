// internal/shopify/types.go
package shopify

import (
	"strconv"
	"strings"
	"time"
)

// Shop is the storefront's own record, used for connectivity checks.
type Shop struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"myshopify_domain"`
	Email  string `json:"email"`
}

// Product is the commerce API's product payload.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Handle      string    `json:"handle"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Tags        string    `json:"tags"`
	Variants    []Variant `json:"variants"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variant carries pricing and inventory for one sellable option.
type Variant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryItemID   int64  `json:"inventory_item_id"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// PriceValue parses the API's decimal-string price. Unparseable prices read
// as zero.
func (v Variant) PriceValue() float64 {
	price, err := strconv.ParseFloat(strings.TrimSpace(v.Price), 64)
	if err != nil {
		return 0
	}
	return price
}

// TagList splits the API's comma-separated tag string.
func (p *Product) TagList() []string {
	if strings.TrimSpace(p.Tags) == "" {
		return nil
	}
	parts := strings.Split(p.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// FirstVariant returns the product's primary variant, or nil for a variantless
// payload.
func (p *Product) FirstVariant() *Variant {
	if len(p.Variants) == 0 {
		return nil
	}
	return &p.Variants[0]
}

// TotalInventory sums inventory across all variants.
func (p *Product) TotalInventory() int {
	total := 0
	for _, v := range p.Variants {
		total += v.InventoryQuantity
	}
	return total
}

// Customer is the commerce API's customer payload.
type Customer struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	TotalSpent  string `json:"total_spent"`
	OrdersCount int    `json:"orders_count"`
}

// TotalSpentValue parses the API's decimal-string spend total.
func (c Customer) TotalSpentValue() float64 {
	spent, err := strconv.ParseFloat(strings.TrimSpace(c.TotalSpent), 64)
	if err != nil {
		return 0
	}
	return spent
}
