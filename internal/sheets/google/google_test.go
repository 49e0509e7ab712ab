package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the handful of Sheets v4 endpoints the client uses
// against an in-memory grid.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	deletes []int64
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, vr.Values...)
		json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Movimientos!A1:H1"},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rq := range req.Requests {
			i := rq.DeleteDimension.Range.StartIndex
			f.deletes = append(f.deletes, i)
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
		}
		json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-1"})
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(vr.Values, f.rows...)
		json.NewEncoder(w).Encode(map[string]any{"updatedRows": 1})
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		var values [][]any
		if strings.HasSuffix(path, "A1:H1") {
			if len(f.rows) > 0 {
				values = f.rows[:1]
			}
		} else {
			for _, row := range f.rows {
				values = append(values, row[:1])
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"values": values})
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{
			"sheets": []any{
				map[string]any{"properties": map[string]any{"sheetId": 7, "title": "Otra"}},
				map[string]any{"properties": map[string]any{"sheetId": 42, "title": "Movimientos"}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(),
		Options{SpreadsheetID: "sheet-1", SheetName: "Movimientos"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func sampleTx(id string) core.Transaction {
	return core.Transaction{
		ID:           id,
		UserID:       "user-1",
		CategoryID:   "cat-1",
		CategoryName: "Comida",
		Type:         core.Expense,
		Amount:       decimal.RequireFromString("12.5"),
		Description:  "almuerzo",
		OccurredAt:   time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC),
	}
}

func TestNew_RequiresIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"missing spreadsheet", Options{SheetName: "Movimientos"}, "missing spreadsheet id"},
		{"missing sheet", Options{SpreadsheetID: "x"}, "missing sheet name"},
		{"unreadable credentials", Options{SpreadsheetID: "x", SheetName: "y", CredentialsFile: "/non/existent.json"}, "read service account file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestClient_AppendTransaction(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if err := c.AppendTransaction(ctx, sampleTx("t1"), decimal.RequireFromString("87.5")); err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}
	// Redelivery must not duplicate the row.
	if err := c.AppendTransaction(ctx, sampleTx("t1"), decimal.RequireFromString("87.5")); err != nil {
		t.Fatalf("AppendTransaction() second call error = %v", err)
	}

	if len(fake.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(fake.rows))
	}
	row := fake.rows[0]
	want := []any{"t1", "2024-05-01 13:30:00", "user-1", "expense", "Comida", "-12.50", "almuerzo", "87.50"}
	if len(row) != len(want) {
		t.Fatalf("row = %v, want %v", row, want)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("col %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestClient_DeleteTransaction(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader() error = %v", err)
	}
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := c.AppendTransaction(ctx, sampleTx(id), decimal.Zero); err != nil {
			t.Fatalf("AppendTransaction(%s) error = %v", id, err)
		}
	}

	if err := c.DeleteTransaction(ctx, "t2"); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if len(fake.deletes) != 1 || fake.deletes[0] != 2 {
		t.Fatalf("deleted row indexes = %v, want [2]", fake.deletes)
	}
	if got := len(fake.rows); got != 3 {
		t.Fatalf("rows = %d, want header + 2", got)
	}

	if err := c.DeleteTransaction(ctx, "unknown"); err != nil {
		t.Fatalf("DeleteTransaction(unknown) error = %v", err)
	}
	if len(fake.deletes) != 1 {
		t.Errorf("missing row should not issue a delete, got %v", fake.deletes)
	}
}

func TestClient_EnsureHeaderOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := c.EnsureHeader(ctx); err != nil {
			t.Fatalf("EnsureHeader() error = %v", err)
		}
	}
	if len(fake.rows) != 1 || fake.rows[0][0] != "ID" {
		t.Fatalf("rows = %v, want a single header", fake.rows)
	}
}

func TestIndexOfID(t *testing.T) {
	values := [][]any{{"ID"}, {}, {" t1 "}, {"t2"}}
	tests := []struct {
		id   string
		want int
	}{
		{"t1", 2},
		{"t2", 3},
		{"t3", -1},
	}
	for _, tt := range tests {
		if got := indexOfID(values, tt.id); got != tt.want {
			t.Errorf("indexOfID(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "x", sheetName: "y"}
	if err := c.AppendTransaction(context.Background(), sampleTx("t1"), decimal.Zero); err == nil {
		t.Error("expected error with nil service")
	}
	if err := c.DeleteTransaction(context.Background(), "t1"); err == nil {
		t.Error("expected error with nil service")
	}
}
