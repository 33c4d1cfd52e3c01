// Package openfoodfacts looks products up by barcode on the public Open Food Facts API.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"nutrimeal"
	"nutrimeal/cache"
)

const (
	SourceName = "openfoodfacts"
	userAgent  = "nutrimeal/0.1 (+https://github.com/nutrimeal)"
)

// DefaultHosts are tried in order; regional mirrors sometimes carry products the world host lacks.
var DefaultHosts = []string{
	"https://world.openfoodfacts.org",
	"https://us.openfoodfacts.org",
	"https://mx.openfoodfacts.org",
	"https://es.openfoodfacts.org",
}

type Client struct {
	hosts      []string
	httpClient nutrimeal.HTTPClient
	timeout    time.Duration
	cache      *cache.Store
}

type ClientOpts struct {
	Hosts      []string
	HTTPClient nutrimeal.HTTPClient
	Timeout    time.Duration
	Cache      *cache.Store
}

func NewClient(opts ClientOpts) *Client {
	if len(opts.Hosts) == 0 {
		opts.Hosts = DefaultHosts
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	return &Client{
		hosts:      opts.Hosts,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		cache:      opts.Cache,
	}
}

func (c *Client) Name() string { return SourceName }

type productResponse struct {
	Status  int `json:"status"`
	Product *struct {
		ProductName string          `json:"product_name"`
		Nutriments  json.RawMessage `json:"nutriments"`
	} `json:"product"`
}

// errNotFound marks a host that answered but does not know the product.
var errNotFound = errors.New("product not found")

// Product returns the product's nutriments object. A product unknown to every host yields nil, nil;
// an error is returned only when no host could be reached.
func (c *Client) Product(ctx context.Context, code string) (*nutrimeal.Lookup, error) {
	key := cache.KeyForID("openfoodfacts:product", code)
	body, err := c.cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, code)
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pr productResponse
	if err := json.Unmarshal(body, &pr); err != nil || pr.Product == nil {
		return nil, nil
	}
	payload := []byte(pr.Product.Nutriments)
	if len(payload) == 0 {
		payload = body
	}
	return &nutrimeal.Lookup{Source: SourceName, Name: pr.Product.ProductName, Payload: payload}, nil
}

func (c *Client) fetch(ctx context.Context, code string) ([]byte, error) {
	var errs []error
	for _, host := range c.hosts {
		body, err := c.fetchHost(ctx, host, code)
		switch {
		case err == nil:
			return body, nil
		case errors.Is(err, errNotFound):
			slog.Debug("OPENFOODFACTS: Not found on host", "host", host, "code", code)
		default:
			slog.Warn("OPENFOODFACTS: Host failed", "host", host, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(c.hosts) {
		return nil, fmt.Errorf("openfoodfacts: every host failed: %w", errors.Join(errs...))
	}
	return nil, errNotFound
}

func (c *Client) fetchHost(ctx context.Context, host, code string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/v2/product/%s.json", host, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", host, resp.StatusCode)
	}

	var pr productResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("%s: decode product: %w", host, err)
	}
	if pr.Status != 1 || pr.Product == nil {
		return nil, errNotFound
	}
	return body, nil
}
