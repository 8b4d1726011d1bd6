package service

import (
	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

// dependencyIndex is the reverse index from content to the products whose
// certificates depend on it. It is rebuilt from post-sync catalog state on
// every refresh; the graph may contain cycles (content modifying products
// that host content modifying the first), which an adjacency map handles
// without mutual pointers.
type dependencyIndex struct {
	// hostProducts maps a content id to the products it is attached to.
	hostProducts map[string][]string
}

func buildDependencyIndex(products map[string]catalogdomain.Product) *dependencyIndex {
	idx := &dependencyIndex{hostProducts: make(map[string][]string)}
	for _, product := range products {
		for _, contentID := range product.ContentIDs {
			idx.hostProducts[contentID] = append(idx.hostProducts[contentID], product.UpstreamID)
		}
	}
	return idx
}

// expand widens the raw change set into the full set of affected product
// ids. A changed content record affects its host products and every product
// on the union of its pre- and post-change modifies edges: a product removed
// from the edge list still needs its certificates rebuilt so they drop the
// content.
func (idx *dependencyIndex) expand(cs refreshdomain.ChangeSet) map[string]bool {
	affected := make(map[string]bool, len(cs.ChangedProducts))
	for id := range cs.ChangedProducts {
		affected[id] = true
	}

	for contentID := range cs.ChangedContent {
		for _, productID := range idx.hostProducts[contentID] {
			affected[productID] = true
		}
		for _, productID := range cs.ContentEdges[contentID] {
			affected[productID] = true
		}
	}

	return affected
}
