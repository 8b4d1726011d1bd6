// Package httpclient talks to a hosted upstream subscription service.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"encoding/json"

	upstreamdomain "github.com/entforge/entforge/internal/upstream/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type snapshotResponse struct {
	Subscriptions []upstreamdomain.Subscription `json:"subscriptions"`
	Products      []upstreamdomain.Product      `json:"products"`
	Content       []upstreamdomain.Content      `json:"content"`
}

// FetchSnapshot retrieves the owner's denormalized snapshot in one call.
func (c *Client) FetchSnapshot(ctx context.Context, ownerKey string) (upstreamdomain.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/owners/%s/snapshot", c.baseURL, url.PathEscape(ownerKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return upstreamdomain.Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return upstreamdomain.Snapshot{}, fmt.Errorf("%w: %v", upstreamdomain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return upstreamdomain.Snapshot{}, fmt.Errorf("%w: upstream returned %d", upstreamdomain.ErrFetchFailed, resp.StatusCode)
	}

	var body snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return upstreamdomain.Snapshot{}, fmt.Errorf("%w: decode: %v", upstreamdomain.ErrFetchFailed, err)
	}

	snapshot := upstreamdomain.Snapshot{
		OwnerKey:      ownerKey,
		Subscriptions: body.Subscriptions,
		Products:      make(map[string]upstreamdomain.Product, len(body.Products)),
		Content:       make(map[string]upstreamdomain.Content, len(body.Content)),
	}
	for _, product := range body.Products {
		snapshot.Products[product.ID] = product
	}
	for _, content := range body.Content {
		snapshot.Content[content.ID] = content
	}
	return snapshot, nil
}
