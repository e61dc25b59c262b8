package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront-payments/config"
	"storefront-payments/internal/adapter/gateway/chapa"
	httpHandler "storefront-payments/internal/adapter/http/handler"
	redisStorage "storefront-payments/internal/adapter/storage/redis"
	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/service"
	"storefront-payments/internal/telemetry"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "whsec-integration-test"
	productID     = "0b7f6e2a-1c3d-4e5f-8a9b-0c1d2e3f4a5b"
)

// fakeChapa serves the two Chapa endpoints the client calls.
type fakeChapa struct {
	server      *httptest.Server
	initialized atomic.Int64

	mu       sync.Mutex
	statuses map[string]string // tx_ref -> status returned by verify
}

func newFakeChapa(t *testing.T) *fakeChapa {
	t.Helper()
	f := &fakeChapa{statuses: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		f.initialized.Add(1)
		var req struct {
			TxRef string `json:"tx_ref"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "Hosted Link",
			"data":    map[string]string{"checkout_url": "https://checkout.chapa.co/checkout/payment/" + req.TxRef},
		})
	})
	mux.HandleFunc("/transaction/verify/", func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		f.mu.Lock()
		status, ok := f.statuses[ref]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"status":  "failed",
				"message": "Invalid transaction or Transaction not found",
				"data":    nil,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "Payment details",
			"data": map[string]string{
				"status":     status,
				"tx_ref":     ref,
				"ref_id":     "APverify1",
				"created_at": "2026-03-01T10:00:00Z",
			},
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeChapa) setStatus(txRef, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[txRef] = status
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// testApp wires the real router, services, Redis stores and Chapa client
// against in-memory tables, miniredis and a fake Chapa API.
type testApp struct {
	server  *httptest.Server
	store   *memoryStore
	audit   *memoryAuditRepo
	chapa   *fakeChapa
	redis   *miniredis.Miniredis
	metrics *telemetry.Metrics
	token   string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	metrics := telemetry.NewMetrics()
	reporter := telemetry.NewReporter(nil, log)
	fake := newFakeChapa(t)

	store := newMemoryStore()
	store.addProduct(&domain.Product{
		ID:        productID,
		CreatorID: "c7a1d0f2-5b6e-4c3d-8e9f-0a1b2c3d4e5f",
		Title:     "Amharic Typography Pack",
		Price:     decimal.NewFromInt(1500),
		Currency:  "ETB",
		Published: true,
		Revenue:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	})
	audit := &memoryAuditRepo{}

	verifier := service.NewWebhookSignatureVerifier(webhookSecret, reporter, metrics, log)
	gateway, err := chapa.NewClient(config.ChapaConfig{
		SecretKey:   "CHASECK_TEST-integration",
		BaseURL:     fake.server.URL,
		Timeout:     5 * time.Second,
		MaxAttempts: 1,
	}, nil, verifier, reporter, metrics, log)
	require.NoError(t, err)

	tokenSvc := service.NewJWTTokenService("integration-jwt-secret", time.Hour, "storefront-payments")
	token, _, err := tokenSvc.Generate("ops@storefront")
	require.NoError(t, err)

	app := config.AppConfig{PublicURL: "https://shop.example.com"}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WebhookSvc: service.NewWebhookService(
			store, gateway, redisStorage.NewDeliveryTracker(rdb), reporter, metrics, log),
		CheckoutSvc: service.NewCheckoutService(
			store, store, gateway, redisStorage.NewCheckoutCache(rdb), metrics, app, log),
		ReconcileSvc:   service.NewReconciliationService(store, gateway, metrics, log),
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       service.NewAuditService(audit, log),
		Metrics:        metrics,
		Logger:         log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{
		server:  server,
		store:   store,
		audit:   audit,
		chapa:   fake,
		redis:   mr,
		metrics: metrics,
		token:   token,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *testApp) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return resp.StatusCode, env
}

func (a *testApp) initiate(t *testing.T, email string) (int, ports.CheckoutResult) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"product_id":     productID,
		"customer_email": email,
		"customer_name":  "Abebe Kebede",
		"customer_phone": "0911234567",
	})
	req, _ := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/payments/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	status, env := a.do(t, req)
	var result ports.CheckoutResult
	if env.Success {
		require.NoError(t, json.Unmarshal(env.Data, &result))
	}
	return status, result
}

// webhook posts payload signed with secret. An empty secret sends no signature.
func (a *testApp) webhook(t *testing.T, payload, secret string) (int, envelope) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, a.server.URL+"/api/webhooks/chapa", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Chapa-Signature", service.Sign(secret, payload))
	}
	return a.do(t, req)
}

func (a *testApp) operator(t *testing.T, method, path string) (int, envelope) {
	t.Helper()
	req, _ := http.NewRequest(method, a.server.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+a.token)
	return a.do(t, req)
}

func message(t *testing.T, env envelope) string {
	t.Helper()
	var data struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Message
}
