package indexer

import (
	"context"

	"github.com/snapetech/vodka-export/internal/catalog"
	"github.com/snapetech/vodka-export/internal/provider"
)

// DefaultChunkSize bounds the number of EPG ids per request.
const DefaultChunkSize = 10

// Window is the EPG request range in signed day offsets from today.
type Window = provider.EPGWindow

// EPGSource returns the raw multi-channel programme guide for one batch.
type EPGSource interface {
	EPGMultiChannel(ctx context.Context, epgIDs []string, w provider.EPGWindow) ([]byte, error)
}

// FetchEPG fetches and decodes one batch of EPG ids. Callers chunk the ids
// (see Chunk) and aggregate the results themselves.
func FetchEPG(ctx context.Context, src EPGSource, epgIDs []string, w Window) ([]catalog.ChannelPrograms, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(epgIDs) == 0 {
		return nil, nil
	}
	body, err := src.EPGMultiChannel(ctx, epgIDs, w)
	if err != nil {
		return nil, err
	}
	return catalog.DecodeChannelPrograms(body)
}

// Chunk splits items into consecutive slices of at most size elements.
// The returned slices share items' backing array.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
