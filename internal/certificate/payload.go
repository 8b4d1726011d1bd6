package certificate

import (
	"encoding/json"
	"sort"

	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

// Payload is what an entitlement certificate attests to: the products
// reachable from the entitlement's pool and the content visible on each.
type Payload struct {
	EntitledProductID string           `json:"entitled_product_id"`
	Products          []ProductPayload `json:"products"`
}

type ProductPayload struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Attributes map[string]any   `json:"attributes,omitempty"`
	Content    []ContentPayload `json:"content"`
}

type ContentPayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// BuildPayload computes the certificate payload for an entitlement against
// pool. products and content are the owner's current catalog keyed by
// upstream id; heldProducts is the set of product ids the consumer currently
// has access to across all of its entitlements.
//
// A product's visible content is the content directly attached to it, plus
// any content attached to a held product whose modified_product_ids names
// this product.
func BuildPayload(pool pooldomain.Pool, products map[string]catalogdomain.Product, content map[string]catalogdomain.Content, heldProducts map[string]bool) Payload {
	payload := Payload{EntitledProductID: pool.ProductID}

	graph := pool.ProductGraph()
	done := make(map[string]bool, len(graph))

	for _, productID := range graph {
		if done[productID] {
			continue
		}
		done[productID] = true

		product, ok := products[productID]
		if !ok {
			continue
		}

		pp := ProductPayload{ID: product.UpstreamID, Name: product.Name}
		if len(product.Attributes) > 0 {
			pp.Attributes = product.Attributes
		}

		seen := make(map[string]bool)
		for _, contentID := range product.ContentIDs {
			c, ok := content[contentID]
			if !ok || seen[c.UpstreamID] {
				continue
			}
			seen[c.UpstreamID] = true
			pp.Content = append(pp.Content, ContentPayload{ID: c.UpstreamID, Label: c.Label, URL: c.ContentURL})
		}

		// Cross-entitlement visibility: content hosted on a product the
		// consumer holds becomes visible here when its modifies edge names
		// this product.
		for _, c := range content {
			if seen[c.UpstreamID] {
				continue
			}
			if !modifiesProduct(c, productID) {
				continue
			}
			if !hostedOnHeldProduct(c, products, heldProducts) {
				continue
			}
			seen[c.UpstreamID] = true
			pp.Content = append(pp.Content, ContentPayload{ID: c.UpstreamID, Label: c.Label, URL: c.ContentURL})
		}

		sort.Slice(pp.Content, func(i, j int) bool { return pp.Content[i].ID < pp.Content[j].ID })
		payload.Products = append(payload.Products, pp)
	}

	sort.Slice(payload.Products, func(i, j int) bool { return payload.Products[i].ID < payload.Products[j].ID })
	return payload
}

func modifiesProduct(c catalogdomain.Content, productID string) bool {
	for _, id := range c.ModifiedProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

func hostedOnHeldProduct(c catalogdomain.Content, products map[string]catalogdomain.Product, heldProducts map[string]bool) bool {
	for productID, held := range heldProducts {
		if !held {
			continue
		}
		product, ok := products[productID]
		if !ok {
			continue
		}
		for _, contentID := range product.ContentIDs {
			if contentID == c.UpstreamID {
				return true
			}
		}
	}
	return false
}

// Canonical renders the payload as deterministic bytes for change detection.
func (p Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}
