package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tabguard.app/cloud/internal/testutil"
)

var errSigner = errors.New("presign failed")

func issueTestToken(t *testing.T, server *Server, sessionID string) string {
	t.Helper()

	body, _ := json.Marshal(TokenRequest{SessionID: sessionID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Token issuance failed with status %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode token response: %v", err)
	}
	if resp["token"] == "" {
		t.Fatal("Expected non-empty token")
	}
	return resp["token"]
}

func TestIssueToken_PaidSession(t *testing.T) {
	server, payments, _ := newTestServer(t)
	payments.Sessions["cs_1"] = testutil.PaidSession("cs_1", "cus_1", "buyer@example.com")

	tok := issueTestToken(t, server, "cs_1")
	if len(tok) != 32 {
		t.Errorf("Expected 32-char token, got %d", len(tok))
	}
}

func TestIssueToken_UnpaidSession(t *testing.T) {
	server, payments, _ := newTestServer(t)
	session := testutil.PaidSession("cs_1", "cus_1", "buyer@example.com")
	session.Paid = false
	payments.Sessions["cs_1"] = session

	body, _ := json.Marshal(TokenRequest{SessionID: "cs_1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestIssueToken_MissingSessionID(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestIssueToken_ProviderError(t *testing.T) {
	server, _, _ := newTestServer(t)

	// Unknown session id surfaces as an upstream failure, not a 403.
	body, _ := json.Marshal(TokenRequest{SessionID: "cs_unknown"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestDownload_RedirectsOnce(t *testing.T) {
	server, payments, _ := newTestServer(t)
	payments.Sessions["cs_1"] = testutil.PaidSession("cs_1", "cus_1", "buyer@example.com")
	tok := issueTestToken(t, server, "cs_1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download?token="+tok, nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusFound, w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "https://bucket.s3.test/installer?sig=abc" {
		t.Errorf("Unexpected redirect target: %s", loc)
	}

	// Second use of the same token is refused.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/download?token="+tok, nil)
	w = httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d on reuse, got %d", http.StatusForbidden, w.Code)
	}
}

func TestDownload_UnknownToken(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download?token=deadbeefdeadbeefdeadbeefdeadbeef", nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestDownload_MissingToken(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestDownload_SignerFailure(t *testing.T) {
	server, payments, _ := newTestServer(t)
	payments.Sessions["cs_1"] = testutil.PaidSession("cs_1", "cus_1", "buyer@example.com")
	tok := issueTestToken(t, server, "cs_1")

	server.Signer = &testutil.FakeSigner{Err: errSigner}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download?token="+tok, nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
