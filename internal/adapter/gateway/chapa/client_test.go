package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront-payments/config"
	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/core/ports/mocks"
	"storefront-payments/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	calls  int32
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.doFunc(req)
}

func testConfig(baseURL string) config.ChapaConfig {
	return config.ChapaConfig{
		SecretKey:      "CHASECK_TEST-abc",
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}
}

func newTestClient(t *testing.T, cfg config.ChapaConfig, httpClient HTTPClient) (*Client, *telemetry.Metrics) {
	t.Helper()
	metrics := telemetry.NewMetrics()
	c, err := NewClient(cfg, httpClient, nil, telemetry.NewReporter(nil, zerolog.Nop()), metrics, zerolog.Nop())
	require.NoError(t, err)
	return c, metrics
}

func testParams() ports.InitiatePaymentParams {
	return ports.InitiatePaymentParams{
		OrderID:       "order-123",
		Amount:        decimal.NewFromInt(100),
		Subject:       "Design Course",
		CustomerName:  "Abebe Kebede Tesfaye",
		CustomerEmail: "abebe@example.com",
		CustomerPhone: "0912345678",
		ReturnURL:     "http://localhost:3000/orders/order-123/success",
		CallbackURL:   "http://localhost:3000/api/webhooks/chapa",
	}
}

func TestNewClient_RequiresSecretKey(t *testing.T) {
	_, err := NewClient(config.ChapaConfig{}, nil, nil, nil, telemetry.NewMetrics(), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_key")
}

func TestInitiatePayment_Success(t *testing.T) {
	var got initializeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer CHASECK_TEST-abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Hosted Link","status":"success","data":{"checkout_url":"https://checkout.chapa.co/pay/abc"}}`))
	}))
	defer srv.Close()

	c, metrics := newTestClient(t, testConfig(srv.URL), nil)

	res, err := c.InitiatePayment(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.chapa.co/pay/abc", res.CheckoutURL)
	assert.Equal(t, "order-123", res.TransactionID, "falls back to the order id")

	assert.Equal(t, "100", got.Amount)
	assert.Equal(t, "ETB", got.Currency)
	assert.Equal(t, "order-123", got.TxRef)
	assert.Equal(t, "Abebe", got.FirstName)
	assert.Equal(t, "Kebede Tesfaye", got.LastName)
	assert.Equal(t, "0912345678", got.PhoneNumber)
	assert.Equal(t, "http://localhost:3000/api/webhooks/chapa", got.CallbackURL)
	assert.Equal(t, "Design Course", got.Customization.Title)
	assert.Equal(t, "Payment for Design Course", got.Customization.Description)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("initialize", "success")))
}

func TestInitiatePayment_ProviderTxRefPreferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"checkout_url":"https://checkout.chapa.co/x","tx_ref":"chapa-tx-1"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), nil)

	res, err := c.InitiatePayment(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "chapa-tx-1", res.TransactionID)
}

func TestInitiatePayment_ProviderErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API Key","status":"failed","data":null}`))
	}))
	defer srv.Close()

	c, metrics := newTestClient(t, testConfig(srv.URL), nil)

	res, err := c.InitiatePayment(context.Background(), testParams())
	assert.Nil(t, res)

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "Invalid API Key", gerr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("initialize", "provider_error")))
}

func TestInitiatePayment_ValidationMessageObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":{"email":["The email must be a valid email address."]},"status":"failed","data":null}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), nil)

	_, err := c.InitiatePayment(context.Background(), testParams())

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "The email must be a valid email address.", gerr.Message)
}

func TestInitiatePayment_MissingCheckoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Hosted Link","status":"success","data":{}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), nil)

	_, err := c.InitiatePayment(context.Background(), testParams())

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Contains(t, gerr.Message, "no checkout URL")
}

func TestInitiatePayment_UndecodableDataReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Hosted Link","status":"success","data":{"checkout_url":42}}`))
	}))
	defer srv.Close()

	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockReporter(ctrl)
	reporter.EXPECT().AddBreadcrumb(gomock.Any(), "payment", gomock.Any(), gomock.Any()).AnyTimes()
	reporter.EXPECT().
		CaptureMessage(gomock.Any(), ports.ReportLevelWarning, "Chapa rejected payment initiation", gomock.Any()).
		Do(func(_ context.Context, _ ports.ReportLevel, _ string, rc ports.ReportContext) {
			assert.Equal(t, "order-123", rc.OrderID)
			assert.Contains(t, rc.Extra["decode_error"], "checkout_url")
		})

	var logs bytes.Buffer
	c, err := NewClient(testConfig(srv.URL), nil, nil, reporter, telemetry.NewMetrics(), zerolog.New(&logs))
	require.NoError(t, err)

	_, err = c.InitiatePayment(context.Background(), testParams())

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Contains(t, gerr.Message, "no checkout URL")
	assert.Contains(t, logs.String(), "undecodable initialize data")
}

func TestInitiatePayment_RetriesTransportErrors(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}
	c, metrics := newTestClient(t, testConfig("http://chapa.invalid"), httpClient)

	_, err := c.InitiatePayment(context.Background(), testParams())

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 3, gerr.Attempts)
	assert.Equal(t, "Payment initiation failed after retries", gerr.Message)
	assert.ErrorContains(t, gerr, "connection refused")
	assert.Equal(t, int32(3), atomic.LoadInt32(&httpClient.calls))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.GatewayRetries.WithLabelValues("initialize")))
}

func TestNewClient_CapsMaxAttempts(t *testing.T) {
	cfg := testConfig("http://chapa.invalid")
	cfg.MaxAttempts = 10
	cfg.RetryBaseDelay = 0

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset")
		},
	}
	c, _ := newTestClient(t, cfg, httpClient)
	assert.Equal(t, maxInitializeAttempts, c.cfg.MaxAttempts)

	_, err := c.InitiatePayment(context.Background(), testParams())

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 3, gerr.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&httpClient.calls))
}

func TestInitiatePayment_RecoversAfterTransientFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"checkout_url":"https://checkout.chapa.co/ok"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), nil)

	res, err := c.InitiatePayment(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.chapa.co/ok", res.CheckoutURL)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestInitiatePayment_BackoffHonoursContext(t *testing.T) {
	cfg := testConfig("http://chapa.invalid")
	cfg.RetryBaseDelay = time.Hour

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("timeout")
		},
	}
	c, _ := newTestClient(t, cfg, httpClient)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.InitiatePayment(ctx, testParams())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&httpClient.calls))
}

func TestInitiatePayment_ReportsExhaustedRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockReporter(ctrl)

	reporter.EXPECT().AddBreadcrumb(gomock.Any(), "payment", gomock.Any(), gomock.Any()).AnyTimes()
	reporter.EXPECT().
		CaptureException(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, err error, rc ports.ReportContext) {
			assert.Equal(t, "chapa_client", rc.Component)
			assert.Equal(t, "order-123", rc.OrderID)
			assert.Equal(t, 3, rc.Extra["attempts"])
		})

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("dial tcp: i/o timeout")
		},
	}
	c, err := NewClient(testConfig("http://chapa.invalid"), httpClient, nil, reporter, telemetry.NewMetrics(), zerolog.Nop())
	require.NoError(t, err)

	_, err = c.InitiatePayment(context.Background(), testParams())
	require.Error(t, err)
}

func TestVerifyPayment_StatusMapping(t *testing.T) {
	tests := []struct {
		chapaStatus string
		want        domain.ProviderStatus
	}{
		{"success", domain.ProviderStatusSuccess},
		{"Successful", domain.ProviderStatusSuccess},
		{"failed", domain.ProviderStatusFailed},
		{"failure", domain.ProviderStatusFailed},
		{"closed", domain.ProviderStatusClosed},
		{"pending", domain.ProviderStatusPending},
		{"processing", domain.ProviderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.chapaStatus, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/transaction/verify/order-123", r.URL.Path)
				_, _ = w.Write([]byte(`{"status":"success","data":{"status":"` + tt.chapaStatus + `","ref_id":"APx1","created_at":"2024-03-01T10:00:00Z"}}`))
			}))
			defer srv.Close()

			c, _ := newTestClient(t, testConfig(srv.URL), nil)

			res, err := c.VerifyPayment(context.Background(), "order-123")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, "APx1", res.TransactionID)
			assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), res.PaidAt.UTC())
		})
	}
}

func TestVerifyPayment_Fallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"status":"pending"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), nil)

	before := time.Now().Add(-time.Second)
	res, err := c.QueryPayment(context.Background(), "order-123")
	require.NoError(t, err)
	assert.Equal(t, "order-123", res.TransactionID)
	assert.True(t, res.PaidAt.After(before))
}

func TestVerifyPayment_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Invalid transaction or Transaction not found","status":"failed","data":null}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), nil)

	_, err := c.VerifyPayment(context.Background(), "missing")

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "Invalid transaction or Transaction not found", gerr.Message)
}

func TestVerifyPayment_TransportError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("network unreachable")
		},
	}
	c, metrics := newTestClient(t, testConfig("http://chapa.invalid"), httpClient)

	_, err := c.VerifyPayment(context.Background(), "order-123")

	var gerr *ports.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "Payment verification failed", gerr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&httpClient.calls))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("verify", "transport_error")))
}

func TestVerifyWebhookSignature_Delegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockSignatureVerifier(ctrl)
	verifier.EXPECT().Verify("payload", "sig").Return(true)

	c, err := NewClient(testConfig("http://chapa.invalid"), nil, verifier, nil, telemetry.NewMetrics(), zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, c.VerifyWebhookSignature("payload", "sig"))
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Abebe", "Abebe", "Abebe"},
		{"Abebe Kebede", "Abebe", "Kebede"},
		{"  Abebe   Kebede  Tesfaye ", "Abebe", "Kebede Tesfaye"},
		{"", "", ""},
	}

	for _, tt := range tests {
		first, last := splitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
