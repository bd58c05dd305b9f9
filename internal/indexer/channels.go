// Package indexer pulls the channel catalog and EPG batches from the provider
// and turns them into catalog entities. Calls are sequential and never retried
// here; the refresh scheduler owns retry.
package indexer

import (
	"context"
	"fmt"
	"log"

	"github.com/snapetech/vodka-export/internal/catalog"
	"github.com/snapetech/vodka-export/internal/provider"
)

// PageSize is the asset list page size used by the web client.
const PageSize = 50

// ChannelPager serves 1-based pages of the live channel list.
type ChannelPager interface {
	ChannelPage(ctx context.Context, pageIndex, pageSize int) (provider.Page, error)
}

// FetchChannels walks every page of the channel list. See FetchChannelsPaged.
func FetchChannels(ctx context.Context, src ChannelPager) ([]catalog.Channel, error) {
	return FetchChannelsPaged(ctx, src, PageSize)
}

// FetchChannelsPaged requests pages of pageSize until the number of distinct
// channels reaches the server-reported total. The total is re-read on every
// page and compared with >=, so a list that shrinks mid-walk still ends.
// An empty page, or one that adds no new channel, also ends the walk.
// Server order is preserved; a channel repeated across a page boundary is kept
// at its first position.
func FetchChannelsPaged(ctx context.Context, src ChannelPager, pageSize int) ([]catalog.Channel, error) {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	var out []catalog.Channel
	seen := make(map[string]struct{})
	for pageIndex := 1; ; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := src.ChannelPage(ctx, pageIndex, pageSize)
		if err != nil {
			return nil, fmt.Errorf("channel page %d: %w", pageIndex, err)
		}
		added := 0
		for _, raw := range page.Objects {
			ch, err := catalog.DecodeChannel(raw)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[ch.ID]; dup {
				continue
			}
			seen[ch.ID] = struct{}{}
			out = append(out, ch)
			added++
		}
		if len(out) >= page.Total {
			break
		}
		if added == 0 {
			log.Printf("indexer: page %d added no channels (have %d of %d); stopping", pageIndex, len(out), page.Total)
			break
		}
	}
	return out, nil
}
