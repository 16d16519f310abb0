// internal/shopify/client.go
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
)

// Client is the per-store commerce API contract consumed by the sync engine.
// List calls return the next page cursor, empty when exhausted.
type Client interface {
	GetShop(ctx context.Context) (*Shop, error)
	ListProducts(ctx context.Context, pageInfo string) ([]Product, string, error)
	GetProduct(ctx context.Context, productID int64) (*Product, error)
	CreateProduct(ctx context.Context, product *Product) (*Product, error)
	UpdateProduct(ctx context.Context, product *Product) (*Product, error)
	DeleteProduct(ctx context.Context, productID int64) error
	UpdateVariant(ctx context.Context, variant *Variant) (*Variant, error)
	SetInventoryLevel(ctx context.Context, variantID int64, quantity int) error
	ListCustomers(ctx context.Context, pageInfo string) ([]Customer, string, error)
}

// ClientFactory builds a Client for a connected store. Injected so the sync
// services never construct HTTP clients themselves.
type ClientFactory interface {
	ClientFor(store *models.Store) Client
}

type httpClientFactory struct {
	cfg config.ShopifyConfig
}

func NewClientFactory(cfg config.ShopifyConfig) ClientFactory {
	return &httpClientFactory{cfg: cfg}
}

func (f *httpClientFactory) ClientFor(store *models.Store) Client {
	return &httpClient{
		shopDomain:  store.ShopDomain,
		accessToken: store.AccessToken,
		apiVersion:  f.cfg.APIVersion,
		pageSize:    f.cfg.PageSize,
		maxRetries:  f.cfg.MaxRetries,
		// Each store has its own bucket; limits are independent per shop.
		limiter: rate.NewLimiter(rate.Limit(f.cfg.RequestsPerSecond), f.cfg.Burst),
		http: &http.Client{
			Timeout: time.Duration(f.cfg.RequestTimeoutSecs) * time.Second,
		},
	}
}

type httpClient struct {
	shopDomain  string
	accessToken string
	apiVersion  string
	pageSize    int
	maxRetries  int
	limiter     *rate.Limiter
	http        *http.Client
}

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

func (c *httpClient) baseURL() string {
	return fmt.Sprintf("https://%s/admin/api/%s", c.shopDomain, c.apiVersion)
}

// doRequest applies the store's rate limit, retries throttled responses
// honoring Retry-After, and decodes the body into out when non-nil. It
// returns the response headers for cursor extraction.
func (c *httpClient) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) (http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	endpoint := c.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request to %s failed: %w", c.shopDomain, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp)
			resp.Body.Close()
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("rate limited by %s after %d retries", c.shopDomain, attempt)
			}
			logrus.WithFields(logrus.Fields{
				"shop":  c.shopDomain,
				"path":  path,
				"retry": attempt + 1,
				"wait":  wait.String(),
			}).Warn("Throttled by commerce API, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return nil, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}

		return resp.Header, nil
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 2 * time.Second
}

// nextPageInfo extracts the page_info cursor from the Link header's
// rel="next" entry.
func nextPageInfo(headers http.Header) string {
	match := nextLinkPattern.FindStringSubmatch(headers.Get("Link"))
	if match == nil {
		return ""
	}
	parsed, err := url.Parse(match[1])
	if err != nil {
		return ""
	}
	return parsed.Query().Get("page_info")
}

func (c *httpClient) GetShop(ctx context.Context) (*Shop, error) {
	var wrapper struct {
		Shop Shop `json:"shop"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/shop.json", nil, nil, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Shop, nil
}

func (c *httpClient) ListProducts(ctx context.Context, pageInfo string) ([]Product, string, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if pageInfo != "" {
		query.Set("page_info", pageInfo)
	}

	var wrapper struct {
		Products []Product `json:"products"`
	}
	headers, err := c.doRequest(ctx, http.MethodGet, "/products.json", query, nil, &wrapper)
	if err != nil {
		return nil, "", err
	}
	return wrapper.Products, nextPageInfo(headers), nil
}

func (c *httpClient) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	var wrapper struct {
		Product Product `json:"product"`
	}
	path := fmt.Sprintf("/products/%d.json", productID)
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Product, nil
}

func (c *httpClient) CreateProduct(ctx context.Context, product *Product) (*Product, error) {
	body := map[string]interface{}{"product": product}
	var wrapper struct {
		Product Product `json:"product"`
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/products.json", nil, body, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Product, nil
}

func (c *httpClient) UpdateProduct(ctx context.Context, product *Product) (*Product, error) {
	body := map[string]interface{}{"product": product}
	var wrapper struct {
		Product Product `json:"product"`
	}
	path := fmt.Sprintf("/products/%d.json", product.ID)
	if _, err := c.doRequest(ctx, http.MethodPut, path, nil, body, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Product, nil
}

func (c *httpClient) DeleteProduct(ctx context.Context, productID int64) error {
	path := fmt.Sprintf("/products/%d.json", productID)
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, nil)
	return err
}

func (c *httpClient) UpdateVariant(ctx context.Context, variant *Variant) (*Variant, error) {
	body := map[string]interface{}{"variant": variant}
	var wrapper struct {
		Variant Variant `json:"variant"`
	}
	path := fmt.Sprintf("/variants/%d.json", variant.ID)
	if _, err := c.doRequest(ctx, http.MethodPut, path, nil, body, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Variant, nil
}

func (c *httpClient) SetInventoryLevel(ctx context.Context, variantID int64, quantity int) error {
	body := map[string]interface{}{
		"variant": map[string]interface{}{
			"id":                 variantID,
			"inventory_quantity": quantity,
		},
	}
	path := fmt.Sprintf("/variants/%d.json", variantID)
	_, err := c.doRequest(ctx, http.MethodPut, path, nil, body, nil)
	return err
}

func (c *httpClient) ListCustomers(ctx context.Context, pageInfo string) ([]Customer, string, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if pageInfo != "" {
		query.Set("page_info", pageInfo)
	}

	var wrapper struct {
		Customers []Customer `json:"customers"`
	}
	headers, err := c.doRequest(ctx, http.MethodGet, "/customers.json", query, nil, &wrapper)
	if err != nil {
		return nil, "", err
	}
	return wrapper.Customers, nextPageInfo(headers), nil
}
