package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/item"
	"pricewatch/internal/store"
	"pricewatch/internal/testutil"
)

var base = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *store.Store
	lane  *testutil.Submitter
	clock *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := testutil.NewClock(base)
	st := store.New(&testutil.Persister{}, clk.Now)
	require.NoError(t, st.Load(context.Background()))
	lane := &testutil.Submitter{Results: map[string]item.Result{}}
	return &fixture{
		svc:   New(st, lane, nil),
		store: st,
		lane:  lane,
		clock: clk,
	}
}

func TestResolveCacheMissThenHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := item.ByCatalogID(item.NamespaceApp, 100)
	f.lane.Results[id.Key()] = item.Result{ID: id, Price: item.Listed("USD", 999), FoundName: "Some Game"}

	e, err := f.svc.Resolve(ctx, item.Descriptor{ID: id})
	require.NoError(t, err)
	assert.Equal(t, item.Listed("USD", 999), e.Price)
	assert.Equal(t, "Some Game", e.Name)
	assert.Equal(t, id, e.CanonicalID)

	// Second resolve inside the freshness window: same value, zero fetches.
	e, err = f.svc.Resolve(ctx, item.Descriptor{ID: id})
	require.NoError(t, err)
	assert.Equal(t, item.Listed("USD", 999), e.Price)
	assert.Len(t, f.lane.Submitted(), 1)
}

func TestResolveStaleEntryRefetches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := item.ByCatalogID(item.NamespaceApp, 100)
	f.lane.Results[id.Key()] = item.Result{ID: id, Price: item.Listed("USD", 999)}

	_, err := f.svc.Resolve(ctx, item.Descriptor{ID: id})
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	f.lane.Results[id.Key()] = item.Result{ID: id, Price: item.Listed("USD", 1299)}

	e, err := f.svc.Resolve(ctx, item.Descriptor{ID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(1299), e.Price.MinorUnits)
	assert.Len(t, f.lane.Submitted(), 2)
}

func TestResolveMigratesIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nameID := item.ByName("Foo")
	appID := item.ByCatalogID(item.NamespaceApp, 123)
	f.lane.Results[nameID.Key()] = item.Result{
		ID:        nameID,
		Price:     item.Listed("USD", 1499),
		FoundName: "Foo",
		FoundID:   appID,
	}

	e, err := f.svc.Resolve(ctx, item.Descriptor{ID: nameID})
	require.NoError(t, err)
	assert.Equal(t, appID, e.Key)
	assert.Equal(t, appID, e.CanonicalID)
	assert.Equal(t, "Foo", e.Name)

	_, ok := f.store.Get(nameID)
	assert.False(t, ok, "name-keyed entry should be gone after migration")
	merged, ok := f.store.Get(appID)
	require.True(t, ok)
	assert.Equal(t, "Foo", merged.Name)
}

func TestResolveFallsBackToHintAndKeyForName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := item.ByCatalogID(item.NamespaceApp, 7)
	f.lane.Results[id.Key()] = item.Result{ID: id, Price: item.Unavailable(item.ReasonNoListingData)}

	e, err := f.svc.Resolve(ctx, item.Descriptor{ID: id, NameHint: "Hinted Name"})
	require.NoError(t, err)
	assert.Equal(t, "Hinted Name", e.Name)

	require.NoError(t, f.svc.ClearCache(ctx))
	e, err = f.svc.Resolve(ctx, item.Descriptor{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "app/7", e.Name, "key stands in when nothing names the item")
}

func TestSoftRefreshSkipsFreshAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := item.Descriptor{ID: item.ByCatalogID(item.NamespaceApp, 1)}
	stale := item.Descriptor{ID: item.ByCatalogID(item.NamespaceApp, 2)}
	missing := item.Descriptor{ID: item.ByName("Never Seen")}

	f.lane.Results[fresh.ID.Key()] = item.Result{ID: fresh.ID, Price: item.Listed("USD", 100)}
	f.lane.Results[stale.ID.Key()] = item.Result{ID: stale.ID, Price: item.Listed("USD", 200)}
	_, err := f.svc.Resolve(ctx, fresh)
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, stale)
	require.NoError(t, err)

	// Age the stale entry past the standard window, then re-warm only the
	// fresh one.
	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.svc.Resolve(ctx, fresh)
	require.NoError(t, err)
	before := len(f.lane.Submitted())

	n := f.svc.SoftRefresh(ctx, []item.Descriptor{fresh, stale, missing})
	assert.Equal(t, 2, n)
	require.Eventually(t, func() bool {
		return len(f.lane.Submitted()) == before+2
	}, time.Second, time.Millisecond)
}

func TestSoftRefreshRetriesUnavailableRegardlessOfAge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gems := item.Descriptor{ID: item.ByName("Gems")}

	// Volatile item whose dedicated source had no matching field.
	e, err := f.svc.Resolve(ctx, gems)
	require.NoError(t, err)
	assert.Equal(t, item.Unavailable(item.ReasonNotFound), e.Price)

	// One minute later the entry is well within the volatile window, but a
	// failed lookup is never fresh.
	f.clock.Advance(time.Minute)
	n := f.svc.SoftRefresh(ctx, []item.Descriptor{gems})
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool {
		return len(f.lane.Submitted()) == 2
	}, time.Second, time.Millisecond)
}

func TestHardRefreshIgnoresFreshness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := item.Descriptor{ID: item.ByCatalogID(item.NamespaceApp, 1)}
	b := item.Descriptor{ID: item.ByCatalogID(item.NamespaceApp, 2)}
	f.lane.Results[a.ID.Key()] = item.Result{ID: a.ID, Price: item.Listed("USD", 100)}
	f.lane.Results[b.ID.Key()] = item.Result{ID: b.ID, Price: item.Listed("USD", 200)}

	_, err := f.svc.Resolve(ctx, a)
	require.NoError(t, err)
	before := len(f.lane.Submitted())

	n := f.svc.HardRefresh(ctx, []item.Descriptor{a, b})
	assert.Equal(t, 2, n)
	require.Eventually(t, func() bool {
		return len(f.lane.Submitted()) == before+2
	}, time.Second, time.Millisecond)
}

func TestAutoCheckRespectsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C", "D"} {
		f.svc.Track(item.Descriptor{ID: item.ByName(name)})
	}

	n := f.svc.AutoCheck(ctx, 2)
	assert.Equal(t, 2, n)
	require.Eventually(t, func() bool {
		return len(f.lane.Submitted()) == 2
	}, time.Second, time.Millisecond)

	assert.Zero(t, f.svc.AutoCheck(ctx, 0))
}

func TestTrackKeepsOrderAndUpdatesHint(t *testing.T) {
	f := newFixture(t)
	f.svc.Track(item.Descriptor{ID: item.ByName("B")})
	f.svc.Track(item.Descriptor{ID: item.ByName("A")})
	f.svc.Track(item.Descriptor{ID: item.ByName("B"), NameHint: "B Proper"})

	got := f.svc.Tracked()
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].ID.Name)
	assert.Equal(t, "B Proper", got[0].NameHint)
	assert.Equal(t, "A", got[1].ID.Name)
}
