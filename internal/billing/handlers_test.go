package billing_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/kiranahub/backend-pos/internal/billing"
)

func newTestRouter(fx *fixture) *chi.Mux {
	handler := &billing.Handler{Service: fx.svc}
	router := chi.NewRouter()
	router.Post("/api/v1/pos/orders", handler.CreateOrder)
	router.Get("/api/v1/pos/orders/{id}", handler.GetOrder)
	router.Post("/api/v1/pos/orders/{id}/mark-paid", handler.MarkPaid)
	router.Post("/api/v1/pos/orders/{id}/print", handler.Reprint)
	router.Get("/api/v1/pos/orders/{id}/receipt", handler.ReceiptPreview)
	return router
}

func TestCreateOrderEndpointValidation(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})
	router := newTestRouter(fx)

	body := bytes.NewBufferString(`{"lines":[],"paymentMode":"CASH"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/orders", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}

func TestCreateOrderEndpointHappyPath(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})
	router := newTestRouter(fx)

	body := bytes.NewBufferString(`{
		"lines":[{"productId":"` + fx.rice.String() + `","qty":1}],
		"paymentMode":"CASH",
		"cashTendered":20000
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/orders", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"invoiceNo":"INV-20260831-0001"`)
	require.Contains(t, rr.Body.String(), `"changeDue":5000`)
}

func TestMarkPaidEndpointRejectsBadID(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})
	router := newTestRouter(fx)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/orders/nope/mark-paid", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestReprintEndpointPrinterDown(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: false})
	router := newTestRouter(fx)

	created := createCashOrder(t, fx)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/orders/"+created+"/print", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "PRINTER_UNAVAILABLE")
}

func TestReceiptEndpointReturnsEscposBytes(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})
	router := newTestRouter(fx)

	created := createCashOrder(t, fx)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pos/orders/"+created+"/receipt", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte{0x1B, '@'}))
	require.Contains(t, rr.Body.String(), "INV-20260831-0001")
	require.Contains(t, rr.Body.String(), "Kirana Hub")
}

func createCashOrder(t *testing.T, fx *fixture) string {
	t.Helper()
	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 15000,
	})
	require.NoError(t, err)
	return view.ID
}
