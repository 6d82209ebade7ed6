//go:build integration

package tissuestore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handylife-debug/webwaka-main-sub008/composition"
	"github.com/handylife-debug/webwaka-main-sub008/natsclient"
	"github.com/handylife-debug/webwaka-main-sub008/storage/kvstore"
	"github.com/handylife-debug/webwaka-main-sub008/tissuestore"
)

func TestIntegration_KVRevisions(t *testing.T) {
	ctx := context.Background()
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())

	kv, err := kvstore.New(ctx, tc.Client, kvstore.Config{Bucket: "CELLBUS_TISSUES"})
	require.NoError(t, err)
	s, err := tissuestore.New(kv)
	require.NoError(t, err)

	def := func() *composition.Tissue {
		return &composition.Tissue{ID: "checkout", Name: "Checkout", Steps: []composition.Step{
			{ID: "tax", CellID: "inventory/TaxAndFee", Action: "calculate"},
		}}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, def()))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got.Revision)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
