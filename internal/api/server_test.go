package api

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"phx_market/internal/infra/storage"
	"phx_market/internal/ledger/stub"
	"phx_market/internal/pricing"
	"phx_market/internal/report"
	"phx_market/internal/risk"
	"phx_market/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *service.MarketService, *stub.Ledger) {
	t.Helper()
	l := stub.NewLedger([]string{"0xTreasury", "0xAlice"}, decimal.NewFromInt(1_000_000))
	store := storage.NewStateFile(filepath.Join(t.TempDir(), "phx_price.json"), decimal.NewFromInt(100), nil)
	svc := service.NewMarketService(service.Options{
		Ledger:  l,
		Store:   store,
		Pricing: pricing.DefaultParams(),
		Risk:    risk.DefaultParams(),
		Random:  pricing.FixedSource(0.5),
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	return NewServer(svc, "localhost:0", metrics), svc, l
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, s, "/metrics")
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestServer_SnapshotIsReadOnly(t *testing.T) {
	s, svc, _ := newTestServer(t)

	rec := get(t, s, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "100", body["price"])
	assert.Empty(t, svc.History(context.Background()))
}

func TestServer_PerformanceNeedsHistory(t *testing.T) {
	s, svc, _ := newTestServer(t)

	rec := get(t, s, "/api/performance")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Tick(ctx)
		require.NoError(t, err)
	}

	rec = get(t, s, "/api/performance")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/api/history?limit=2")
	var history []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 2)

	rec = get(t, s, "/api/chart.png?width=64&height=32")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestServer_ChartSizeIsCapped(t *testing.T) {
	s, svc, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Tick(context.Background())
		require.NoError(t, err)
	}

	rec := get(t, s, "/api/chart.png?width=4611686018427387904&height=12000")
	require.Equal(t, http.StatusOK, rec.Code)

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), report.MaxChartSide)
	assert.LessOrEqual(t, img.Bounds().Dy(), report.MaxChartSide)
}

func TestServer_WalletLedgerDown(t *testing.T) {
	s, _, l := newTestServer(t)
	l.SetBalance("0xAlice", decimal.NewFromInt(2))

	rec := get(t, s, "/api/wallet/0xAlice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"quote_value":"200"`)

	l.Err = errors.New("dial tcp: refused")
	rec = get(t, s, "/api/wallet/0xAlice")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
