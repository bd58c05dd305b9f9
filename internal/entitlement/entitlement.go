// Package entitlement resolves which media files the account may play.
package entitlement

import (
	"context"
	"fmt"
	"sort"

	"github.com/snapetech/vodka-export/internal/provider"
)

// ChunkSize is the maximum number of file ids per price query.
const ChunkSize = 100

// Purchase states that make a file playable.
var availableStatuses = map[string]struct{}{
	"subscription_purchased":                {},
	"free":                                  {},
	"ppv_purchased":                         {},
	"collection_purchased":                  {},
	"pre_paid_purchased":                    {},
	"subscription_purchased_wrong_currency": {},
}

// Available reports whether a purchase status grants playback.
// Empty and unknown statuses do not.
func Available(status string) bool {
	_, ok := availableStatuses[status]
	return ok
}

// PriceSource answers product price queries for a batch of file ids.
type PriceSource interface {
	ProductPrices(ctx context.Context, fileIDs []string) ([]provider.Price, error)
}

// Set is a set of entitled file ids.
type Set map[string]struct{}

// Has reports whether id is entitled. A nil Set has nothing.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members sorted.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FilterAvailable queries prices for fileIDs in chunks of ChunkSize, one
// request per chunk in order, and returns the union of available ids.
// Empty input returns an empty set without a query. Errors are not retried.
func FilterAvailable(ctx context.Context, src PriceSource, fileIDs []string) (Set, error) {
	out := make(Set)
	for start := 0; start < len(fileIDs); start += ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+ChunkSize, len(fileIDs))
		prices, err := src.ProductPrices(ctx, fileIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("entitlement chunk %d-%d: %w", start, end, err)
		}
		for _, p := range prices {
			if p.FileID != "" && Available(p.PurchaseStatus) {
				out[p.FileID] = struct{}{}
			}
		}
	}
	return out, nil
}
