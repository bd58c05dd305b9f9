package export

import (
	"context"

	"github.com/snapetech/vodka-export/internal/metrics"
	"github.com/snapetech/vodka-export/internal/provider"
)

// Instrument counts every provider call of src in m.
func Instrument(src Source, m *metrics.Metrics) Source {
	if m == nil {
		return src
	}
	return &instrumented{src: src, m: m}
}

type instrumented struct {
	src Source
	m   *metrics.Metrics
}

func (i *instrumented) ChannelPage(ctx context.Context, pageIndex, pageSize int) (provider.Page, error) {
	p, err := i.src.ChannelPage(ctx, pageIndex, pageSize)
	i.m.ObserveRequest("asset_list", err)
	return p, err
}

func (i *instrumented) ProductPrices(ctx context.Context, fileIDs []string) ([]provider.Price, error) {
	p, err := i.src.ProductPrices(ctx, fileIDs)
	i.m.ObserveRequest("product_price", err)
	return p, err
}

func (i *instrumented) EPGMultiChannel(ctx context.Context, ids []string, w provider.EPGWindow) ([]byte, error) {
	b, err := i.src.EPGMultiChannel(ctx, ids, w)
	i.m.ObserveRequest("epg_multi_channel", err)
	return b, err
}
