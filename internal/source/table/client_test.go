package table

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/source"
)

func fastBackoff() source.Backoff {
	return source.Backoff{Base: time.Millisecond, Ceiling: 5 * time.Millisecond, MaxAttempts: 2}
}

func TestListPending_PaginatesAndOrders(t *testing.T) {
	newPages := map[string]listResponse{
		"": {
			Records: []recordDTO{
				{ID: "rec-b", Date: "2026-08-02", Transaction: "B - Two", Category: "Expense",
					UpdatedAt: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)},
			},
			Offset: "page2",
		},
		"page2": {
			Records: []recordDTO{
				{ID: "rec-c", Date: "2026-08-03", Transaction: "C - Three", Category: "Splitwise",
					Splitwise: true, PartnerOrigin: true,
					UpdatedAt: time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)},
			},
		},
	}
	deletedPage := listResponse{
		Records: []recordDTO{
			{ID: "rec-a", Date: "2026-08-01", Transaction: "A - One", Category: "Expense",
				Deleted: true, UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/records" {
			http.NotFound(w, r)
			return
		}
		var resp listResponse
		if r.URL.Query().Get("deleted") == "true" {
			resp = deletedPage
		} else {
			resp = newPages[r.URL.Query().Get("offset")]
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	records, err := c.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	// Oldest modification first, across both scans.
	wantOrder := []string{"rec-a", "rec-b", "rec-c"}
	for i, want := range wantOrder {
		if records[i].ID != want {
			t.Errorf("records[%d].ID = %s, want %s", i, records[i].ID, want)
		}
	}
	if !records[0].Deleted {
		t.Error("rec-a should carry the deleted flag")
	}
	if !records[2].PartnerOrigin {
		t.Error("rec-c should carry the partner-origin flag")
	}
}

func TestCreate_SendsPartnerOrigin(t *testing.T) {
	var gotBody recordDTO
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		gotBody.ID = "tbl-1"
		json.NewEncoder(w).Encode(gotBody)
	}))
	defer server.Close()

	c, err := New(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rec := &models.Record{
		Date:          time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC),
		Transaction:   "Splitwise - Dinner",
		Category:      models.CategorySplitwise,
		Splitwise:     true,
		PartnerOrigin: true,
	}
	id, err := c.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "tbl-1" {
		t.Errorf("id = %s, want tbl-1", id)
	}
	if !gotBody.PartnerOrigin {
		t.Error("create request dropped the partner-origin flag")
	}
}

func TestListPending_RejectsUnknownCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listResponse{
			Records: []recordDTO{{ID: "rec-x", Date: "2026-08-01", Category: "Lottery"}},
		})
	}))
	defer server.Close()

	c, err := New(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c.ListPending(context.Background()); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestMarkImported_PatchesFlag(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := New(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.MarkImported(context.Background(), "rec-1", time.Now()); err != nil {
		t.Fatalf("MarkImported failed: %v", err)
	}
	if gotPath != "/api/records/rec-1" {
		t.Errorf("path = %s", gotPath)
	}
	if imported, _ := gotBody["imported"].(bool); !imported {
		t.Errorf("body = %v, want imported=true", gotBody)
	}
}
