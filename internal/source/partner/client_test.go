package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/source"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, "test-token", 42, 5*time.Second,
		source.Backoff{Base: time.Millisecond, Ceiling: time.Millisecond, MaxAttempts: 1})
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}
	return client
}

func TestListChanged(t *testing.T) {
	deletedAt := time.Date(2026, 8, 14, 8, 0, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("friend_id"); got != "42" {
			t.Errorf("friend_id = %q, want 42", got)
		}
		if got := r.URL.Query().Get("updated_after"); got != "2026-08-01T00:00:00Z" {
			t.Errorf("updated_after = %q", got)
		}

		// Two pages, newest first on the wire; the client re-sorts.
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"expenses": []map[string]any{{
					"id": 701, "cost": "30", "transaction_balance": "30",
					"description": "Payment", "payment": true,
					"date":       "2026-08-13T00:00:00Z",
					"updated_at": "2026-08-13T10:00:00Z",
				}},
				"offset": "page-2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"expenses": []map[string]any{{
				"id": 700, "cost": "42.50", "transaction_balance": "21.25",
				"description": "Dinner",
				"date":        "2026-08-11T00:00:00Z",
				"deleted_at":  deletedAt.Format(time.RFC3339),
				"updated_at":  "2026-08-12T09:00:00Z",
			}},
		})
	}))

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expenses, err := client.ListChanged(context.Background(), since)
	if err != nil {
		t.Fatalf("ListChanged failed: %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("got %d expenses, want 2", len(expenses))
	}
	if expenses[0].ID != 700 || expenses[1].ID != 701 {
		t.Errorf("order = [%d, %d], want oldest change first", expenses[0].ID, expenses[1].ID)
	}
	if !expenses[0].Deleted {
		t.Error("deleted_at was not mapped to the deleted flag")
	}
	if !expenses[0].TransactionBalance.Equal(dec("21.25")) {
		t.Errorf("transaction balance = %s, want 21.25", expenses[0].TransactionBalance)
	}
	if !expenses[1].Payment {
		t.Error("payment flag lost")
	}
}

func TestCreateExpense(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/expenses" {
			t.Errorf("%s %s, want POST /api/expenses", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if body["split"] != "equal" {
			t.Errorf("split = %v, want equal", body["split"])
		}
		if body["friend_id"] != float64(42) {
			t.Errorf("friend_id = %v, want 42", body["friend_id"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": 900, "cost": "80", "transaction_balance": "40",
			"description": "Fancy Dinner - Date Night",
			"date":        "2026-08-10T00:00:00Z",
			"updated_at":  "2026-08-10T19:00:00Z",
		})
	}))

	exp, err := client.CreateExpense(context.Background(), dec("80"),
		"Fancy Dinner - Date Night", time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if exp.ID != 900 {
		t.Errorf("id = %d, want 900", exp.ID)
	}
	if !exp.TransactionBalance.Equal(dec("40")) {
		t.Errorf("transaction balance = %s, want 40 (half of 80)", exp.TransactionBalance)
	}
}

func TestDeleteExpense(t *testing.T) {
	var path, method string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))

	if err := client.DeleteExpense(context.Background(), 900); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if method != http.MethodDelete || path != "/api/expenses/900" {
		t.Errorf("%s %s, want DELETE /api/expenses/900", method, path)
	}
}

func TestBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"balance": "75.50"})
	}))

	balance, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Equal(dec("75.50")) {
		t.Errorf("balance = %s, want 75.50", balance)
	}
}
