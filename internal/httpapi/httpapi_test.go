package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"millbook/backend/internal/cache"
	"millbook/backend/internal/domain"
	"millbook/backend/internal/service"
	"millbook/backend/internal/store/memory"
)

type stubSync struct {
	status    domain.SyncStatus
	triggered int
}

func (s *stubSync) Status(ctx context.Context) (*domain.SyncStatus, error) {
	out := s.status
	return &out, nil
}

func (s *stubSync) Trigger() { s.triggered++ }

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStockCache{})
	auth := NewAuthManager("test-secret-material-0123456789ab", time.Hour, repo)
	api := New(svc, auth, &stubSync{status: domain.SyncStatus{Online: true}}, "http://127.0.0.1:3000")
	return api, api.Handler()
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(handler, http.MethodGet, "/api/v1/inventory", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/inventory", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestOperatorCannotCreateInventoryItems(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/inventory", token, domain.InventoryItemCreateRequest{
		Type:    domain.ItemTypeRice,
		Variety: "Ponni",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOperatorCannotAdjustInventory(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/inventory/adjust", token, domain.AdjustInventoryRequest{
		InventoryItemID: "inv-bran",
		NewQuantityKg:   100,
		Reason:          "recount",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}
}

func TestSellTransactionLifecycleOverHTTP(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/transactions", token, domain.CreateTransactionRequest{
		Type:       domain.TxTypeSell,
		CustomerID: "cust-ravi",
		PaidPaisa:  300000,
		Items: []domain.TransactionItemRequest{
			{InventoryItemID: "inv-rice-sona", QuantityKg: 50, UnitPricePaisa: 10000},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Transaction.DuePaisa != 200000 {
		t.Fatalf("expected due 200000, got %d", created.Transaction.DuePaisa)
	}

	rec = doJSON(handler, http.MethodPost,
		fmt.Sprintf("/api/v1/transactions/%s/payments", created.Transaction.ID), token,
		domain.AddPaymentRequest{AmountPaisa: 200000, Method: "cash"})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost,
		fmt.Sprintf("/api/v1/transactions/%s/payments", created.Transaction.ID), token,
		domain.AddPaymentRequest{AmountPaisa: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overpayment expected 400, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodPost,
		fmt.Sprintf("/api/v1/transactions/%s/cancel", created.Transaction.ID), token,
		domain.CancelTransactionRequest{Reason: "entry error"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet,
		"/api/v1/transactions/"+created.Transaction.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get expected 200, got %d", rec.Code)
	}
	var fetched struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fetched.Transaction.Status != domain.TxStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", fetched.Transaction.Status)
	}
}

func TestInsufficientStockMapsToConflict(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/transactions", token, domain.CreateTransactionRequest{
		Type:      domain.TxTypeSell,
		PaidPaisa: 100000000,
		Items: []domain.TransactionItemRequest{
			{InventoryItemID: "inv-rice-sona", QuantityKg: 10000, UnitPricePaisa: 10000},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownTransactionMapsToNotFound(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/transactions/txn-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMillingEndpoint(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/milling", token, domain.MillingRequest{
		PaddyItemID: "inv-paddy-sona",
		RiceItemID:  "inv-rice-sona",
		PaddyQtyKg:  1000,
		RiceQtyKg:   650,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/inventory/inv-rice-sona", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Item domain.InventoryItem `json:"item"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Item.QuantityKg != 1150 {
		t.Fatalf("expected 1150 kg rice, got %.2f", resp.Item.QuantityKg)
	}
}

func TestInventoryMovementsEndpoint(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/inventory/inv-paddy-sona/movements?limit=5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Movements []domain.StockMovement `json:"movements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Movements) != 1 || resp.Movements[0].Type != domain.MovementInitial {
		t.Fatalf("expected the opening movement, got %+v", resp.Movements)
	}
}

func TestSyncEndpoints(t *testing.T) {
	api, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/sync/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status domain.SyncStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Online {
		t.Fatal("expected online status from stub")
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/sync/trigger", token, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if api.syncer.(*stubSync).triggered != 1 {
		t.Fatal("trigger endpoint must reach the sync controller")
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "operator", "operator123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions",
		bytes.NewReader([]byte(`{"type":"sell","bogus":true}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(handler, http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing X-Frame-Options header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://127.0.0.1:3000" {
		t.Fatal("missing CORS origin header")
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/inventory", nil)
	pre := httptest.NewRecorder()
	handler.ServeHTTP(pre, req)
	if pre.Code != http.StatusNoContent {
		t.Fatalf("preflight expected 204, got %d", pre.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	_, handler := newTestAPI(t)

	var lastCode int
	for i := 0; i < 6; i++ {
		body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", lastCode)
	}
}

func TestOperatorManagementRequiresAdmin(t *testing.T) {
	_, handler := newTestAPI(t)
	operatorToken := loginAs(t, handler, "operator", "operator123")
	adminToken := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/users/operators", operatorToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/users/operators", adminToken, domain.OperatorCreateRequest{
		Username: "weigher",
		Password: "scale-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	token := loginAs(t, handler, "weigher", "scale-pass")
	if token == "" {
		t.Fatal("new operator must be able to log in")
	}
}
