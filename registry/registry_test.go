package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	cberrors "github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/storage"
	"github.com/handylife-debug/webwaka-main-sub008/storage/memstore"
)

func manifest(id, version string, channels ...string) Manifest {
	sector, name, _ := SplitID(id)
	if len(channels) == 0 {
		channels = []string{StableChannel}
	}
	return Manifest{
		ID:       id,
		Sector:   sector,
		Name:     name,
		Version:  version,
		Actions:  []string{"calculate"},
		Channels: channels,
	}
}

func newRegistry(t *testing.T, opts ...Option) (*Registry, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	r, err := New(store, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, store
}

func TestRegisterCell_FirstPublishCreatesChannels(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	e, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0", "stable", "beta"), Artifacts{Endpoint: "http://tax:8080"})
	require.NoError(t, err)

	require.Len(t, e.Channels, 2)
	assert.Equal(t, "1.0.0", e.Channels["stable"].Version)
	assert.False(t, e.Channels["stable"].AutoAdvance)
	assert.True(t, e.Channels["beta"].AutoAdvance)
	assert.Equal(t, []string{"1.0.0"}, e.Metadata.Versions)
	assert.Equal(t, HealthHealthy, e.Metadata.Health)
	assert.Equal(t, "http://tax:8080", e.Artifacts["1.0.0"].Server)
}

func TestRegisterCell_LaterPublishMovesOnlyAutoAdvance(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0", "stable", "beta"), Artifacts{Endpoint: "http://v1"})
	require.NoError(t, err)
	e, err := r.RegisterCell(ctx, manifest("finance/tax", "1.1.0", "stable", "beta", "canary"), Artifacts{Endpoint: "http://v2"})
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", e.Channels["stable"].Version)
	assert.Equal(t, "1.1.0", e.Channels["beta"].Version)
	assert.Equal(t, "1.1.0", e.Channels["canary"].Version)
	assert.Equal(t, "1.1.0", e.Manifest.Version)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, e.Metadata.Versions)
}

func TestRegisterCell_VersionsAreImmutable(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)
	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.Error(t, err)
	assert.True(t, cberrors.IsInvalid(err))
}

func TestRegisterCell_Validation(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)

	tests := []struct {
		name string
		m    Manifest
		a    Artifacts
	}{
		{"missing actions", Manifest{ID: "a/b", Sector: "a", Name: "b", Version: "1.0.0", Channels: []string{"stable"}}, Artifacts{}},
		{"id mismatch", Manifest{ID: "a/c", Sector: "a", Name: "b", Version: "1.0.0", Actions: []string{"x"}, Channels: []string{"stable"}}, Artifacts{}},
		{"bad version", manifest("a/b", "one"), Artifacts{}},
		{"bad endpoint", manifest("a/b", "1.0.0"), Artifacts{Endpoint: "ftp://host"}},
		{"bad schema", manifest("a/b", "1.0.0"), Artifacts{Schema: []byte("{")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RegisterCell(ctx, tt.m, tt.a)
			require.Error(t, err)
			assert.True(t, cberrors.IsInvalid(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestRegisterCell_StoresArtifacts(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t, WithEndpointBaseURL("http://cells.local/"))
	r.newUploadID = func() string { return "u1" }

	schemaDoc := []byte(`{"version":"1","actions":{"calculate":{"input":{"type":"object","required":["amount"]}}}}`)
	e, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{
		ServerBundle: []byte("server"),
		ClientBundle: []byte("client"),
		Schema:       schemaDoc,
	})
	require.NoError(t, err)

	loc := e.Artifacts["1.0.0"]
	assert.Equal(t, "http://cells.local/finance/tax/1.0.0", loc.Server)
	assert.Equal(t, "artifacts/finance/tax/1.0.0/u1/server", loc.ServerBundle)
	assert.Equal(t, "artifacts/finance/tax/1.0.0/u1/client", loc.ClientBundle)
	assert.Equal(t, []string{"calculate"}, loc.Actions)

	data, err := r.LoadArtifact(ctx, loc.ClientBundle)
	require.NoError(t, err)
	assert.Equal(t, "client", string(data))

	doc, err := r.LoadSchema(ctx, "finance/tax", "1.0.0")
	require.NoError(t, err)
	_, ok := doc.Action("calculate")
	assert.True(t, ok)

	_, err = r.LoadArtifact(ctx, "cells/finance/tax")
	assert.True(t, cberrors.IsNotFound(err))
}

func TestRegisterCell_ConcurrentSameVersionKeepsWinnerArtifacts(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)

	for round := 0; round < 20; round++ {
		version := fmt.Sprintf("1.0.%d", round)
		type result struct {
			bundle string
			err    error
		}
		results := make(chan result, 2)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, bundle := range []string{"bundle-a", "bundle-b"} {
			wg.Add(1)
			go func(bundle string) {
				defer wg.Done()
				<-start
				_, err := r.RegisterCell(ctx, manifest("finance/tax", version), Artifacts{ServerBundle: []byte(bundle)})
				results <- result{bundle: bundle, err: err}
			}(bundle)
		}
		close(start)
		wg.Wait()
		close(results)

		var winners []result
		for res := range results {
			if res.err != nil {
				assert.True(t, cberrors.IsInvalid(res.err), "got %v", res.err)
				continue
			}
			winners = append(winners, res)
		}
		require.Len(t, winners, 1, "version %s", version)

		e, err := r.GetEntry(ctx, "finance/tax")
		require.NoError(t, err)
		data, err := r.LoadArtifact(ctx, e.Artifacts[version].ServerBundle)
		require.NoError(t, err)
		assert.Equal(t, winners[0].bundle, string(data))

		keys, err := store.List(ctx, storage.Join("artifacts", "finance", "tax", version)+"/")
		require.NoError(t, err)
		assert.Len(t, keys, 1, "loser artifacts left behind for %s", version)
	}
}

func TestResolveCell_ChannelIsolation(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0", "stable", "beta"), Artifacts{Endpoint: "http://v1"})
	require.NoError(t, err)
	_, err = r.RegisterCell(ctx, manifest("finance/tax", "2.0.0", "stable", "beta"), Artifacts{Endpoint: "http://v2"})
	require.NoError(t, err)

	stable, err := r.ResolveCell(ctx, "finance/tax", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", stable.Version)
	assert.Equal(t, "http://v1", stable.Locations.Server)

	beta, err := r.ResolveCell(ctx, "finance/tax", "beta")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", beta.Version)
	assert.Equal(t, "http://v2", beta.Locations.Server)
}

func TestResolveCell_NotFound(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.ResolveCell(ctx, "finance/missing", "stable")
	var nf *cberrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, cberrors.KindCell, nf.Kind)

	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)
	_, err = r.ResolveCell(ctx, "finance/tax", "nightly")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, cberrors.KindChannel, nf.Kind)

	_, err = r.ResolveCell(ctx, "not-an-id", "stable")
	assert.True(t, cberrors.IsNotFound(err))
}

func TestResolveCell_CachesUntilChannelMoves(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)
	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.1.0"), Artifacts{})
	require.NoError(t, err)

	first, err := r.ResolveCell(ctx, "finance/tax", "stable")
	require.NoError(t, err)
	second, err := r.ResolveCell(ctx, "finance/tax", "stable")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Stats().CachedResolutions)

	_, err = r.UpdateChannel(ctx, "finance/tax", "stable", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Stats().CachedResolutions)

	third, err := r.ResolveCell(ctx, "finance/tax", "stable")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", third.Version)
}

func TestResolveCell_CacheExpires(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	r, _ := newRegistry(t, WithClock(clock), WithCacheTTL(time.Minute))

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)
	first, err := r.ResolveCell(ctx, "finance/tax", "stable")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	second, err := r.ResolveCell(ctx, "finance/tax", "stable")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestResolveCell_WritesBackDownloads(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r, err := New(store, nil, WithCacheTTL(time.Millisecond))
	require.NoError(t, err)

	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)

	res, err := r.ResolveCell(ctx, "finance/tax", "stable")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Entry.Metadata.Downloads)
	assert.False(t, res.Entry.Metadata.LastAccessed.IsZero())

	require.NoError(t, r.Close())

	var stored Entry
	require.NoError(t, storage.GetJSON(ctx, store, "cells/finance/tax", &stored))
	assert.Equal(t, int64(1), stored.Metadata.Downloads)
	assert.False(t, stored.Metadata.LastAccessed.IsZero())
}

func TestUpdateChannel(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0", "stable", "beta"), Artifacts{})
	require.NoError(t, err)

	_, err = r.UpdateChannel(ctx, "finance/missing", "stable", "1.0.0")
	assert.True(t, cberrors.IsNotFound(err))

	_, err = r.UpdateChannel(ctx, "finance/tax", "nightly", "1.0.0")
	assert.True(t, cberrors.IsNotFound(err))

	_, err = r.UpdateChannel(ctx, "finance/tax", "stable", "9.9.9")
	var ve *cberrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "channel", ve.Subject)
	assert.Equal(t, "version", ve.Field)
	assert.True(t, cberrors.IsInvalid(err))

	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.1.0", "stable", "beta"), Artifacts{})
	require.NoError(t, err)
	e, err := r.UpdateChannel(ctx, "finance/tax", "stable", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", e.Channels["stable"].Version)
	assert.False(t, e.Channels["stable"].AutoAdvance)
}

func TestPromote(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0", "stable", "beta"), Artifacts{})
	require.NoError(t, err)
	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.2.0", "stable", "beta"), Artifacts{})
	require.NoError(t, err)

	e, err := r.Promote(ctx, "finance/tax", "beta", "stable")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", e.Channels["stable"].Version)

	_, err = r.Promote(ctx, "finance/tax", "nightly", "stable")
	assert.True(t, cberrors.IsNotFound(err))
}

func TestListCellsBySectorAndStats(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	for _, id := range []string{"finance/tax", "finance/fee", "retail/cart"} {
		_, err := r.RegisterCell(ctx, manifest(id, "1.0.0"), Artifacts{})
		require.NoError(t, err)
	}

	finance, err := r.ListCellsBySector(ctx, "finance")
	require.NoError(t, err)
	require.Len(t, finance, 2)
	assert.Equal(t, "finance/fee", finance[0].Manifest.ID)
	assert.Equal(t, "finance/tax", finance[1].Manifest.ID)

	all, err := r.ListCellsBySector(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := r.ListCellsBySector(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, none)

	stats, err := r.GetCellStats(ctx, "retail/cart")
	require.NoError(t, err)
	assert.Equal(t, "retail", stats.Sector)
	assert.Equal(t, "1.0.0", stats.Channels["stable"])
	assert.Equal(t, HealthHealthy, stats.Health)
}

func TestMarkHealth(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)

	require.NoError(t, r.MarkHealth(ctx, "finance/tax", HealthDegraded))
	stats, err := r.GetCellStats(ctx, "finance/tax")
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, stats.Health)

	assert.True(t, cberrors.IsInvalid(r.MarkHealth(ctx, "finance/tax", Health("sick"))))
	assert.True(t, cberrors.IsNotFound(r.MarkHealth(ctx, "finance/none", HealthFailed)))
}

func TestSigning(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t, WithSigningKey([]byte("secret")))

	e, err := r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	require.NoError(t, err)
	require.NotEmpty(t, e.Manifest.Signature)
	require.NoError(t, r.VerifyManifest(e.Manifest))

	tampered := e.Manifest
	tampered.Version = "1.0.1"
	assert.True(t, cberrors.IsInvalid(r.VerifyManifest(tampered)))

	unsigned, _ := newRegistry(t)
	assert.Error(t, unsigned.VerifyManifest(e.Manifest))
}

// failingStore answers every call with an infrastructure error.
type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte) error {
	return fmt.Errorf("bucket offline")
}
func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("bucket offline")
}
func (failingStore) List(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("bucket offline")
}
func (failingStore) Delete(context.Context, string) error { return fmt.Errorf("bucket offline") }

func TestStorageFailureIsNotNotFound(t *testing.T) {
	ctx := context.Background()
	r, err := New(failingStore{}, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ResolveCell(ctx, "finance/tax", "stable")
	require.Error(t, err)
	assert.False(t, cberrors.IsNotFound(err))
	assert.True(t, cberrors.IsStorageUnavailable(err))
	assert.True(t, cberrors.IsTransient(err))

	_, err = r.RegisterCell(ctx, manifest("finance/tax", "1.0.0"), Artifacts{})
	assert.True(t, cberrors.IsStorageUnavailable(err))

	_, err = r.ListCellsBySector(ctx, "finance")
	assert.True(t, cberrors.IsStorageUnavailable(err))
}

func TestConcurrentPublishes(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.RegisterCell(ctx, manifest("finance/tax", fmt.Sprintf("1.%d.0", i), "stable", "beta"), Artifacts{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := r.GetCellStats(ctx, "finance/tax")
	require.NoError(t, err)
	assert.Len(t, stats.Versions, 10)
}

func TestResolveCell_ChannelsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := memstore.New()
		r, err := New(store, nil)
		require.NoError(rt, err)
		defer r.Close()

		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{3,8}`), 1, 6, rapid.ID[string]).Draw(rt, "channels")
		versions := rapid.IntRange(1, 4).Draw(rt, "versions")

		channels := append([]string{StableChannel}, names...)
		channels = dedupe(channels)
		for v := 0; v < versions; v++ {
			_, err := r.RegisterCell(ctx, manifest("prop/cell", fmt.Sprintf("1.%d.0", v), channels...), Artifacts{})
			require.NoError(rt, err)
		}

		latest := fmt.Sprintf("1.%d.0", versions-1)
		for _, ch := range channels {
			res, err := r.ResolveCell(ctx, "prop/cell", ch)
			require.NoError(rt, err)
			if ch == StableChannel {
				assert.Equal(rt, "1.0.0", res.Version)
			} else {
				assert.Equal(rt, latest, res.Version)
			}
		}
	})
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
