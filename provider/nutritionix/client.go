// Package nutritionix resolves natural-language ingredient queries through the Nutritionix
// natural nutrients endpoint. Credentials are "appId:appKey" pairs rotated like any other token pool.
package nutritionix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nutrimeal"
	"nutrimeal/cache"
	"nutrimeal/credential"
)

const (
	SourceName     = "nutritionix"
	DefaultBaseURL = "https://trackapi.nutritionix.com"
)

type Client struct {
	baseURL string
	rotator *credential.Rotator
	cache   *cache.Store
}

type ClientOpts struct {
	BaseURL string
	// Keys are "appId:appKey" pairs.
	Keys       []string
	HTTPClient nutrimeal.HTTPClient
	Timeout    time.Duration
	Cache      *cache.Store
	Now        func() time.Time
}

func NewClient(opts ClientOpts) (*Client, error) {
	var pool []string
	for _, k := range opts.Keys {
		if _, _, ok := splitKey(k); ok {
			pool = append(pool, k)
			continue
		}
		slog.Warn("NUTRITIONIX: Ignoring malformed key, expected appId:appKey")
	}
	rotator, err := credential.NewRotator(credential.RotatorOpts{
		Name:       SourceName,
		Pool:       pool,
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Timeout,
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		rotator: rotator,
		cache:   opts.Cache,
	}, nil
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Rotator() *credential.Rotator { return c.rotator }

type food struct {
	FoodName           string   `json:"food_name"`
	ServingQty         float64  `json:"serving_qty"`
	ServingUnit        string   `json:"serving_unit"`
	ServingWeightGrams *float64 `json:"serving_weight_grams"`
}

// Nutrients posts the query and returns one lookup per matched food. Values in each payload
// describe the whole serving, so BasisGrams and Grams both carry the serving weight.
// A 404 means Nutritionix could not parse any food from the query.
func (c *Client) Nutrients(ctx context.Context, query string) ([]nutrimeal.Lookup, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := cache.KeyForID("nutritionix:natural", query)
	body, err := c.cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		payload, err := json.Marshal(map[string]string{"query": query})
		if err != nil {
			return nil, err
		}
		resp, err := c.rotator.Call(ctx, func(ctx context.Context, token string) (*http.Request, error) {
			appID, appKey, _ := splitKey(token)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/natural/nutrients", bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-app-id", appID)
			req.Header.Set("x-app-key", appKey)
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		slog.Info("NUTRITIONIX: Natural query resolved", "query", query, "attempts", resp.Attempts)
		return resp.Body, nil
	})

	var upErr *credential.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode == http.StatusNotFound {
		slog.Debug("NUTRITIONIX: No foods matched", "query", query)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseFoods(body)
}

// ParseFoods splits a natural nutrients response into per-food lookups.
func ParseFoods(body []byte) ([]nutrimeal.Lookup, error) {
	var resp struct {
		Foods []json.RawMessage `json:"foods"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("nutritionix: decode foods: %w", err)
	}

	out := make([]nutrimeal.Lookup, 0, len(resp.Foods))
	for _, raw := range resp.Foods {
		var f food
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		l := nutrimeal.Lookup{Source: SourceName, Name: f.FoodName, Payload: raw}
		if f.ServingWeightGrams != nil && *f.ServingWeightGrams > 0 {
			g := *f.ServingWeightGrams
			l.BasisGrams = g
			l.Grams = &g
		}
		out = append(out, l)
	}
	return out, nil
}

func splitKey(k string) (appID, appKey string, ok bool) {
	appID, appKey, ok = strings.Cut(k, ":")
	appID, appKey = strings.TrimSpace(appID), strings.TrimSpace(appKey)
	return appID, appKey, ok && appID != "" && appKey != ""
}
