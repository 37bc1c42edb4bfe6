package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"millbook/backend/internal/domain"
)

func TestPushCustomerCreatesWithPost(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotCompany string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCompany = r.Header.Get("X-Company-ID")
		json.NewEncoder(w).Encode(map[string]string{"id": "remote-cust-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", "mill-1")
	remoteID, err := client.PushCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Ravi Traders"})
	if err != nil {
		t.Fatalf("push customer: %v", err)
	}
	if remoteID != "remote-cust-1" {
		t.Fatalf("expected remote-cust-1, got %q", remoteID)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v1/customers" {
		t.Fatalf("expected POST /api/v1/customers, got %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer secret-key" || gotCompany != "mill-1" {
		t.Fatalf("auth headers missing: %q %q", gotAuth, gotCompany)
	}
}

func TestPushTransactionUpdatesWithPut(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	remoteID, err := client.PushTransaction(context.Background(), domain.Transaction{ID: "txn-1", RemoteID: "remote-txn-1"})
	if err != nil {
		t.Fatalf("push transaction: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/v1/transactions/remote-txn-1" {
		t.Fatalf("expected PUT with remote id, got %s %s", gotMethod, gotPath)
	}
	// Empty response id falls back to the id we already hold.
	if remoteID != "remote-txn-1" {
		t.Fatalf("expected remote-txn-1, got %q", remoteID)
	}
}

func TestPushErrorIncludesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "company mismatch", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "mill-1")
	_, err := client.PushInventoryItem(context.Background(), domain.InventoryItem{ID: "inv-1"})
	if err == nil {
		t.Fatal("expected error from 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "company mismatch") {
		t.Fatalf("error should carry status and body snippet: %v", err)
	}
}

func TestPullSendsSinceAndCompany(t *testing.T) {
	since := time.Date(2026, 8, 1, 6, 30, 0, 0, time.UTC)
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode([]domain.InventoryItem{
			{RemoteID: "remote-inv-1", Type: domain.ItemTypeRice, Variety: "Sona Masoori", QuantityKg: 500},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "mill-1")
	items, err := client.PullInventoryItems(context.Background(), &since)
	if err != nil {
		t.Fatalf("pull inventory: %v", err)
	}
	if len(items) != 1 || items[0].RemoteID != "remote-inv-1" {
		t.Fatalf("unexpected items %+v", items)
	}
	if got := gotQuery["since"]; len(got) != 1 || got[0] != "2026-08-01T06:30:00Z" {
		t.Fatalf("since query wrong: %v", gotQuery["since"])
	}
	if got := gotQuery["company_id"]; len(got) != 1 || got[0] != "mill-1" {
		t.Fatalf("company_id query wrong: %v", gotQuery["company_id"])
	}
}

func TestOnlineProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("unexpected probe path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	client := NewClient(server.URL, "", "")
	if !client.Online(context.Background()) {
		t.Fatal("expected online against live server")
	}

	server.Close()
	if client.Online(context.Background()) {
		t.Fatal("expected offline after server shutdown")
	}
}
