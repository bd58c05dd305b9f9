package entitlement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/vodka-export/internal/provider"
)

// fakePrices answers from a fixed status table and records each batch.
type fakePrices struct {
	status  map[string]string
	batches [][]string
	err     error
}

func (f *fakePrices) ProductPrices(ctx context.Context, ids []string) ([]provider.Price, error) {
	f.batches = append(f.batches, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	var out []provider.Price
	for _, id := range ids {
		out = append(out, provider.Price{FileID: id, PurchaseStatus: f.status[id]})
	}
	return out, nil
}

func TestFilterAvailable_chunks250(t *testing.T) {
	ids := make([]string, 250)
	status := map[string]string{}
	want := Set{}
	for i := range ids {
		ids[i] = fmt.Sprintf("f%d", i)
		switch i % 5 {
		case 0:
			status[ids[i]] = "subscription_purchased"
			want[ids[i]] = struct{}{}
		case 1:
			status[ids[i]] = "free"
			want[ids[i]] = struct{}{}
		case 2:
			status[ids[i]] = "for_purchase"
		case 3:
			status[ids[i]] = ""
		}
	}
	src := &fakePrices{status: status}

	got, err := FilterAvailable(context.Background(), src, ids)
	require.NoError(t, err)
	require.Len(t, src.batches, 3)
	assert.Len(t, src.batches[0], 100)
	assert.Len(t, src.batches[1], 100)
	assert.Len(t, src.batches[2], 50)
	assert.Equal(t, "f200", src.batches[2][0])
	assert.Equal(t, want, got)
}

func TestFilterAvailable_empty(t *testing.T) {
	src := &fakePrices{}
	got, err := FilterAvailable(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Empty(t, src.batches)
}

func TestFilterAvailable_errorPropagates(t *testing.T) {
	boom := errors.New("http 502")
	src := &fakePrices{err: boom}
	_, err := FilterAvailable(context.Background(), src, []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, src.batches, 1)
}

func TestAvailable(t *testing.T) {
	for _, s := range []string{"subscription_purchased", "free", "ppv_purchased", "collection_purchased", "pre_paid_purchased", "subscription_purchased_wrong_currency"} {
		assert.True(t, Available(s), s)
	}
	for _, s := range []string{"", "for_purchase", "FREE", "unknown"} {
		assert.False(t, Available(s), s)
	}
}

func TestSet(t *testing.T) {
	s := Set{"b": {}, "a": {}}
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	var nilSet Set
	assert.False(t, nilSet.Has("a"))
}
