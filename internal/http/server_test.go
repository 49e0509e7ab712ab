package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"billetera/internal/auth"
	"billetera/internal/catalog"
	"billetera/internal/core"
	"billetera/internal/ledger"
	"billetera/internal/log"
	"billetera/internal/middleware/ratelimit"
	"billetera/internal/storage/memory"
)

var (
	alice = core.User{ID: "alice", FirstName: "Alicia", LastName: "Pérez", Email: "alicia@gmail.com"}
	bob   = core.User{ID: "bob", FirstName: "Roberto"}
)

type harness struct {
	store   *memory.Store
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	ids     map[string]string
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Minute)
		return cur
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cat := catalog.New(store, catalog.WithLogger(log.Discard()))
	if _, err := cat.EnsureSeeded(ctx, catalog.DefaultSeeds()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ids := make(map[string]string)
	for _, typ := range []core.TxType{core.Income, core.Expense} {
		cats, err := cat.ListByType(ctx, typ)
		if err != nil {
			t.Fatalf("list categories: %v", err)
		}
		for _, c := range cats {
			ids[string(typ)+"/"+c.Name] = c.ID
		}
	}
	l := ledger.New(store, cat,
		ledger.WithLogger(log.Discard()),
		ledger.WithClock(steppingClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))))
	return &harness{store: store, catalog: cat, ledger: l, ids: ids}
}

func (h *harness) server(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	deps := Deps{
		Ledger:     h.ledger,
		Categories: h.catalog,
		Users:      auth.Static{User: alice},
		Ready:      h.store.Ping,
		Logger:     log.Discard(),
		Now:        func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (h *harness) create(t *testing.T, srv *Server, typ core.TxType, category, amount string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"category_id": h.ids[string(typ)+"/"+category],
		"type":        string(typ),
		"amount":      amount,
	})
	return do(t, srv, http.MethodPost, "/api/transactions", string(body))
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}

	down := h.server(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})
	if rr := do(t, down, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing backend status=%d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newHarness(t).server(t, nil)
	rr := do(t, srv, http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[ErrorBody](t, rr); got.Code != CodeNotFound {
		t.Errorf("code=%q", got.Code)
	}
}

func TestMe(t *testing.T) {
	srv := newHarness(t).server(t, nil)
	rr := do(t, srv, http.MethodGet, "/api/me", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[map[string]string](t, rr)
	if got["nombre"] != "Alicia" || got["gmail"] != "alicia@gmail.com" || got["display_name"] != "Alicia Pérez" {
		t.Errorf("me = %v", got)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	h := newHarness(t)
	tokens, err := auth.NewTokens(strings.Repeat("s", 32), "billetera")
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	srv := h.server(t, func(d *Deps) {
		d.Users = auth.ContextProvider{}
		d.Authenticate = auth.Middleware(tokens, log.Discard())
	})

	if rr := do(t, srv, http.MethodGet, "/api/me", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token status=%d", rr.Code)
	}

	raw, err := tokens.Issue(bob, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("with token status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[map[string]string](t, rr); got["id"] != "bob" {
		t.Errorf("me = %v", got)
	}

	if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz must not require a token, status=%d", rr.Code)
	}
}

func TestMissingUser(t *testing.T) {
	srv := newHarness(t).server(t, func(d *Deps) { d.Users = auth.Static{} })
	if rr := do(t, srv, http.MethodGet, "/api/balance", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("status=%d", rr.Code)
	}
}

func TestCategories(t *testing.T) {
	srv := newHarness(t).server(t, nil)

	type list struct {
		Categories []CategoryResponse `json:"categories"`
	}
	rr := do(t, srv, http.MethodGet, "/api/categories?type=income", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[list](t, rr)
	if len(got.Categories) != 6 {
		t.Fatalf("income categories = %d, want 6", len(got.Categories))
	}
	for _, c := range got.Categories {
		if c.Type != core.Income || c.Icon == "" || c.Color == "" {
			t.Errorf("category not decorated: %+v", c)
		}
	}

	if got := decode[list](t, do(t, srv, http.MethodGet, "/api/categories", "")); len(got.Categories) != 12 {
		t.Errorf("all categories = %d, want 12", len(got.Categories))
	}
	if rr := do(t, srv, http.MethodGet, "/api/categories?type=transfer", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad type status=%d", rr.Code)
	}
}

func TestCreateTransaction(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)

	rr := h.create(t, srv, core.Income, "Salario", "100")
	if rr.Code != http.StatusCreated {
		t.Fatalf("income status=%d body=%s", rr.Code, rr.Body)
	}
	created := decode[CreatedResponse](t, rr)
	if created.Balance.Balance != "100.00" || created.Transaction.Display != "+$100.00" {
		t.Errorf("created = %+v", created)
	}
	if rr.Header().Get("Location") != "/api/transactions/"+created.Transaction.ID {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}

	rr = h.create(t, srv, core.Expense, "Comida", "150")
	if rr.Code != http.StatusConflict {
		t.Fatalf("overdraft status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[ErrorBody](t, rr); got.Code != CodeInsufficientBalance || got.Deficit != "50.00" {
		t.Errorf("overdraft body = %+v", got)
	}

	rr = h.create(t, srv, core.Expense, "Comida", "30,5")
	if rr.Code != http.StatusCreated {
		t.Fatalf("comma amount status=%d body=%s", rr.Code, rr.Body)
	}

	rr = do(t, srv, http.MethodGet, "/api/balance", "")
	if got := decode[BalanceResponse](t, rr); got.Balance != "69.50" || got.Display != "$69.50" {
		t.Errorf("balance = %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/transactions", "")
	list := decode[struct {
		Transactions []TransactionResponse `json:"transactions"`
	}](t, rr)
	if len(list.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2", len(list.Transactions))
	}
	if list.Transactions[0].CategoryName != "Comida" || list.Transactions[0].Signed != "-30.50" {
		t.Errorf("newest transaction = %+v", list.Transactions[0])
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)
	salario := h.ids["income/Salario"]

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"unknown field", `{"category_id":"` + salario + `","type":"income","amount":"1","extra":1}`, http.StatusBadRequest},
		{"trailing data", `{"category_id":"` + salario + `","type":"income","amount":"1"} {}`, http.StatusBadRequest},
		{"negative amount", `{"category_id":"` + salario + `","type":"income","amount":"-5"}`, http.StatusBadRequest},
		{"zero amount", `{"category_id":"` + salario + `","type":"income","amount":0}`, http.StatusBadRequest},
		{"bad type", `{"category_id":"` + salario + `","type":"transfer","amount":"1"}`, http.StatusBadRequest},
		{"type mismatch", `{"category_id":"` + salario + `","type":"expense","amount":"1"}`, http.StatusBadRequest},
		{"unknown category", `{"category_id":"nope","type":"income","amount":"1"}`, http.StatusNotFound},
		{"missing category", `{"type":"income","amount":"1"}`, http.StatusBadRequest},
		{"numeric amount", `{"category_id":"` + salario + `","type":"ingreso","amount":12.5}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/transactions", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body)
			}
		})
	}
}

func TestDeleteTransaction(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)
	other := h.server(t, func(d *Deps) { d.Users = auth.Static{User: bob} })

	h.create(t, srv, core.Income, "Salario", "100")
	created := decode[CreatedResponse](t, h.create(t, srv, core.Expense, "Transporte", "40"))
	target := "/api/transactions/" + created.Transaction.ID

	if rr := do(t, other, http.MethodDelete, target, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status=%d", rr.Code)
	}

	rr := do(t, srv, http.MethodDelete, target, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body)
	}
	got := decode[struct {
		Balance BalanceResponse `json:"balance"`
	}](t, rr)
	if got.Balance.Balance != "100.00" {
		t.Errorf("balance after delete = %q", got.Balance.Balance)
	}

	if rr := do(t, srv, http.MethodDelete, target, ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}
}

func TestBreakdown(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)

	rr := do(t, srv, http.MethodGet, "/api/breakdown?type=expense", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("empty status=%d", rr.Code)
	}
	if got := decode[BreakdownResponse](t, rr); !got.NoData || got.Plot != nil {
		t.Errorf("empty breakdown = %+v", got)
	}

	h.create(t, srv, core.Income, "Salario", "1000")
	h.create(t, srv, core.Expense, "Comida", "10")
	h.create(t, srv, core.Expense, "Servicios", "100")
	h.create(t, srv, core.Expense, "Transporte", "1")
	h.create(t, srv, core.Expense, "Comida", "5")

	rr = do(t, srv, http.MethodGet, "/api/breakdown?type=expense&width=300&height=200&padding=20&coloring=palette", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	got := decode[BreakdownResponse](t, rr)
	if got.NoData || got.Plot == nil {
		t.Fatalf("breakdown without plot: %+v", got)
	}
	if got.Total != "116.00" || len(got.Totals) != 3 {
		t.Fatalf("totals = %s %+v", got.Total, got.Totals)
	}
	if got.Totals[0].Label != "Comida" || got.Totals[0].Amount != "15.00" || got.Totals[0].Color != "#FF6B6B" {
		t.Errorf("first total = %+v", got.Totals[0])
	}
	pts := got.Plot.Points
	if len(pts) != 3 || pts[0].Label != "Transporte" || pts[2].Label != "Servicios" {
		t.Fatalf("plot order = %+v", pts)
	}
	if !(pts[0].X < pts[1].X && pts[1].X < pts[2].X) || !(pts[0].Y > pts[1].Y && pts[1].Y > pts[2].Y) {
		t.Errorf("plot not monotonic: %+v", pts)
	}
	if pts[2].Y != 20 {
		t.Errorf("largest amount y = %v, want top padding 20", pts[2].Y)
	}

	rr = do(t, srv, http.MethodGet, "/api/breakdown?type=expense&year=2024&month=4", "")
	if got := decode[BreakdownResponse](t, rr); !got.NoData || got.Month != 4 {
		t.Errorf("april breakdown = %+v", got)
	}

	for _, q := range []string{"type=nope", "type=expense&width=abc", "type=expense&width=10&padding=20", "type=expense&coloring=rainbow", "type=expense&month=13"} {
		if rr := do(t, srv, http.MethodGet, "/api/breakdown?"+q, ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status=%d", q, rr.Code)
		}
	}
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)
	h.create(t, srv, core.Income, "Salario", "500")
	for i := 0; i < 6; i++ {
		h.create(t, srv, core.Expense, "Comida", "10")
	}

	rr := do(t, srv, http.MethodGet, "/api/summary?year=2024&month=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[SummaryResponse](t, rr)
	if got.Income != "500.00" || got.Expense != "60.00" || got.Net != "440.00" {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Recent) != 5 {
		t.Errorf("recent = %d, want 5", len(got.Recent))
	}

	// Defaults to the server's current month.
	if got := decode[SummaryResponse](t, do(t, srv, http.MethodGet, "/api/summary", "")); got.Year != 2024 || got.Month != 5 {
		t.Errorf("default month = %d-%d", got.Year, got.Month)
	}
	if rr := do(t, srv, http.MethodGet, "/api/summary?month=0", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("month=0 status=%d", rr.Code)
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, nil)
	h.create(t, srv, core.Income, "Salario", "500")
	h.create(t, srv, core.Expense, "Comida", "42")

	rr := do(t, srv, http.MethodGet, "/api/export.xlsx?year=2024&month=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "billetera-2024-05.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 3 {
		t.Errorf("sheets = %v", got)
	}
}

func TestWriteRateLimit(t *testing.T) {
	h := newHarness(t)
	srv := h.server(t, func(d *Deps) { d.RateLimit = ratelimit.Config{RequestsPerMinute: 2} })

	h.create(t, srv, core.Income, "Salario", "1")
	h.create(t, srv, core.Income, "Salario", "1")
	if rr := h.create(t, srv, core.Income, "Salario", "1"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("third write status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/balance", ""); rr.Code != http.StatusOK {
		t.Errorf("reads are not limited, status=%d", rr.Code)
	}
}
