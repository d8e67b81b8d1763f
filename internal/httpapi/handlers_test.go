package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ferremax/backend/internal/domain"
	"ferremax/backend/internal/service"
	"ferremax/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON fires an authenticated JSON request through the full handler chain and
// returns the recorder. A non-empty csrf is attached as X-CSRF-Token.
func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"email":    "admin@ferremax.local",
		"password": "admin123",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("expected access_token in response")
	}
	if body.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", body.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"email":    "admin@ferremax.local",
		"password": "wrongpassword",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin@ferremax.local", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestSellerCannotCreateCategory(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "vendedor@ferremax.local", "seller123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/categories", token, csrf, map[string]string{
		"name": "Jardinería",
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller category create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin@ferremax.local", "admin123")
	csrf := fetchCSRFToken(t, api)

	// Seeded product 1 is HER-001 at 189.50 with 25 in stock.
	createRec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{
		"seller": "Carlos",
		"total":  "379.00",
		"lines": []map[string]any{
			{"product_id": 1, "qty": 2, "unit_price": "189.50"},
		},
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", createRec.Code, createRec.Body.String())
	}

	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed sale, got %q", created.Sale.Status)
	}

	productRec := doJSON(t, api, http.MethodGet, "/api/v1/products/1", token, "", nil)
	var productBody struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(productRec.Body).Decode(&productBody); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if productBody.Product.Stock != 23 {
		t.Fatalf("expected stock 23 after sale, got %d", productBody.Product.Stock)
	}

	cancelRec := doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/sales/%d/cancel", created.Sale.ID), token, csrf, nil)
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d (body: %s)", cancelRec.Code, cancelRec.Body.String())
	}

	productRec = doJSON(t, api, http.MethodGet, "/api/v1/products/1", token, "", nil)
	if err := json.NewDecoder(productRec.Body).Decode(&productBody); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if productBody.Product.Stock != 25 {
		t.Fatalf("expected stock restored to 25 after cancel, got %d", productBody.Product.Stock)
	}

	// Cancelling a second time conflicts with current state.
	cancelRec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/sales/%d/cancel", created.Sale.ID), token, csrf, nil)
	if cancelRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double cancel, got %d (body: %s)", cancelRec.Code, cancelRec.Body.String())
	}
}

func TestSaleInsufficientStockReturns409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "vendedor@ferremax.local", "seller123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{
		"total": "189500.00",
		"lines": []map[string]any{
			{"product_id": 1, "qty": 1000, "unit_price": "189.50"},
		},
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSellerCannotCancelSale(t *testing.T) {
	api := newTestAPI(t)
	adminToken := loginAs(t, api, "admin@ferremax.local", "admin123")
	sellerToken := loginAs(t, api, "vendedor@ferremax.local", "seller123")
	csrf := fetchCSRFToken(t, api)

	createRec := doJSON(t, api, http.MethodPost, "/api/v1/sales", adminToken, csrf, map[string]any{
		"total": "45.00",
		"lines": []map[string]any{
			{"product_id": 2, "qty": 1, "unit_price": "45.00"},
		},
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("sale create failed: %d (body: %s)", createRec.Code, createRec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec := doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/sales/%d/cancel", created.Sale.ID), sellerToken, csrf, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCashCutDuplicateReturns409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin@ferremax.local", "admin123")
	csrf := fetchCSRFToken(t, api)

	payload := map[string]any{
		"responsible":     "Gerente",
		"completed_count": 0,
		"cancelled_count": 0,
		"total_revenue":   "0.00",
		"units_sold":      0,
	}

	first := doJSON(t, api, http.MethodPost, "/api/v1/cash-cuts", token, csrf, payload)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first cash cut, got %d (body: %s)", first.Code, first.Body.String())
	}

	second := doJSON(t, api, http.MethodPost, "/api/v1/cash-cuts", token, csrf, payload)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate cash cut, got %d (body: %s)", second.Code, second.Body.String())
	}
}

func TestDailySummaryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "vendedor@ferremax.local", "seller123")
	csrf := fetchCSRFToken(t, api)

	createRec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{
		"total": "90.00",
		"lines": []map[string]any{
			{"product_id": 2, "qty": 2, "unit_price": "45.00"},
		},
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("sale create failed: %d (body: %s)", createRec.Code, createRec.Body.String())
	}

	rec := doJSON(t, api, http.MethodGet, "/api/v1/cash-cuts/summary", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var summary domain.DailySummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.CompletedCount != 1 {
		t.Fatalf("expected 1 completed sale, got %d", summary.CompletedCount)
	}
	if summary.UnitsSold != 2 {
		t.Fatalf("expected 2 units sold, got %d", summary.UnitsSold)
	}
	if summary.CashCutDone {
		t.Fatalf("expected cash cut not done yet")
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
