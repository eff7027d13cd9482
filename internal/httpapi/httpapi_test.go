package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/item"
	"pricewatch/internal/lookup"
	"pricewatch/internal/store"
	"pricewatch/internal/testutil"
)

var base = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T) (*Server, *testutil.Submitter, *testutil.Clock) {
	t.Helper()
	clk := testutil.NewClock(base)
	st := store.New(&testutil.Persister{}, clk.Now)
	require.NoError(t, st.Load(context.Background()))
	lane := &testutil.Submitter{Results: map[string]item.Result{}}
	svc := lookup.New(st, lane, nil)

	srv := New(context.Background(), svc, nil)
	srv.now = clk.Now
	return srv, lane, clk
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPriceResolvesAndCaches(t *testing.T) {
	srv, lane, _ := newServer(t)
	id := item.ByCatalogID(item.NamespaceApp, 100)
	lane.Results[id.Key()] = item.Result{ID: id, Price: item.Listed("USD", 999), FoundName: "Some Game"}

	rec := do(t, srv, http.MethodGet, "/price?key=app/100", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got entryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "app/100", got.Key)
	assert.Equal(t, "Some Game", got.Name)
	assert.Equal(t, "USD|999", got.Price)
	assert.Equal(t, "0.00 minutes", got.Age)

	// Second request is served from the cache.
	rec = do(t, srv, http.MethodGet, "/price?key=app/100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, lane.Submitted(), 1)
}

func TestGetPriceRequiresKey(t *testing.T) {
	srv, _, _ := newServer(t)
	rec := do(t, srv, http.MethodGet, "/price", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrices(t *testing.T) {
	srv, lane, clk := newServer(t)
	id := item.ByName("Gems")
	lane.Results[id.Key()] = item.Result{ID: id, Price: item.Quoted("$0.03"), FoundName: "Gems"}
	rec := do(t, srv, http.MethodGet, "/price?key=Gems", "")
	require.Equal(t, http.StatusOK, rec.Code)

	clk.Advance(26 * time.Hour)
	rec = do(t, srv, http.MethodGet, "/prices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []entryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Gems", got[0].Name)
	assert.Equal(t, "$0.03", got[0].Price)
	assert.Equal(t, "1.08 days", got[0].Age)
}

func TestTrackAndSoftRefresh(t *testing.T) {
	srv, lane, _ := newServer(t)

	rec := do(t, srv, http.MethodPost, "/items", `{"key": "app/220", "name_hint": "Half-Life 2"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodPost, "/items", `{"key": "Gems"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodPost, "/refresh/soft", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got["triggered"])
	require.Eventually(t, func() bool {
		return len(lane.Submitted()) == 2
	}, time.Second, time.Millisecond)
}

func TestTrackRejectsBadBody(t *testing.T) {
	srv, _, _ := newServer(t)
	rec := do(t, srv, http.MethodPost, "/items", `{"key": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/items", `{"name_hint": "no key"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHardRefreshIgnoresFreshEntries(t *testing.T) {
	srv, lane, _ := newServer(t)
	id := item.ByCatalogID(item.NamespaceApp, 100)
	lane.Results[id.Key()] = item.Result{ID: id, Price: item.Listed("USD", 999)}

	do(t, srv, http.MethodPost, "/items", `{"key": "app/100"}`)
	do(t, srv, http.MethodGet, "/price?key=app/100", "")
	before := len(lane.Submitted())

	rec := do(t, srv, http.MethodPost, "/refresh/hard", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		return len(lane.Submitted()) == before+1
	}, time.Second, time.Millisecond)
}

func TestClearCache(t *testing.T) {
	srv, lane, _ := newServer(t)
	id := item.ByName("Gems")
	lane.Results[id.Key()] = item.Result{ID: id, Price: item.Quoted("$0.03")}
	do(t, srv, http.MethodGet, "/price?key=Gems", "")

	rec := do(t, srv, http.MethodDelete, "/cache", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/prices", "")
	var got []entryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got)
}

func TestPrune(t *testing.T) {
	srv, lane, clk := newServer(t)
	id := item.ByName("Old Game")
	lane.Results[id.Key()] = item.Result{ID: id, Price: item.Quoted("$1")}
	do(t, srv, http.MethodGet, "/price?key=Old+Game", "")

	clk.Advance(31 * 24 * time.Hour)
	rec := do(t, srv, http.MethodPost, "/cache/prune", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got["removed"])
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Second, "0.50 minutes"},
		{45 * time.Minute, "45.00 minutes"},
		{90 * time.Minute, "1.50 hours"},
		{36 * time.Hour, "1.50 days"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.age); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}
