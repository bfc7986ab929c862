package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"taxfolio/internal/core"
	"taxfolio/internal/services"
	"taxfolio/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	calc := core.NewCalculator(core.DefaultTaxConfig())
	svc := services.NewEntryService(repo, nil, calc)
	s := NewServer(":0", svc, calc)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
	})
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

const sampleIncomes = `[
	{"sender": "Acme", "type": "1099-NEC", "date": "2024-03-15", "gross": "10000"},
	{"sender": "Globex", "type": "W-2", "date": "2024-03-20", "gross": "2000"}
]`

func TestBreakdownEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/api/breakdown", `{"incomes": `+sampleIncomes+`}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got breakdownJSON
	decodeBody(t, resp, &got)

	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows", len(got.Rows))
	}
	nec := got.Rows[0]
	if nec.SETax != "1530.00" || nec.FedTax != "1000.00" || nec.StateTax != "400.00" {
		t.Errorf("1099-NEC taxes = %s/%s/%s", nec.SETax, nec.FedTax, nec.StateTax)
	}
	if nec.Net != "7070.00" {
		t.Errorf("1099-NEC net = %s", nec.Net)
	}
	// Withheld income carries zeros in the breakdown pass.
	w2 := got.Rows[1]
	if w2.TotalTax != "0.00" || w2.Net != "2000.00" {
		t.Errorf("W-2 row = %+v", w2)
	}
	if got.Totals.Net != "9070.00" {
		t.Errorf("total net = %s", got.Totals.Net)
	}
}

func TestBreakdownValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no incomes",
			body: `{"incomes": []}`,
			want: "at least one income",
		},
		{
			name: "missing sender",
			body: `{"incomes": [{"sender": " ", "type": "W-2", "date": "2024-01-01", "gross": "10"}]}`,
			want: "missing sender",
		},
		{
			name: "bad date",
			body: `{"incomes": [{"sender": "A", "type": "W-2", "date": "01/02/2024", "gross": "10"}]}`,
			want: "invalid date",
		},
		{
			name: "negative gross",
			body: `{"incomes": [{"sender": "A", "type": "W-2", "date": "2024-01-01", "gross": "-10"}]}`,
			want: "invalid gross",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts, "/api/breakdown", tt.body)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var got errorResponse
			decodeBody(t, resp, &got)
			if !strings.Contains(got.Error, tt.want) {
				t.Errorf("error = %q, want substring %q", got.Error, tt.want)
			}
		})
	}
}

func TestAllocateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	body := `{
		"incomes": [{"sender": "Acme", "type": "1099-NEC", "date": "2024-03-15", "gross": "10000"}],
		"expenses": [
			{"sender": "Acme", "name": "Laptop", "amount": "1000"},
			{"sender": "Acme", "name": "Desk", "amount": "500"}
		]
	}`
	resp := postJSON(t, ts, "/api/allocate", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got allocationJSON
	decodeBody(t, resp, &got)

	if len(got.Lines) != 2 {
		t.Fatalf("got %d lines", len(got.Lines))
	}
	// Default policy subtracts the sender's whole total on every line.
	if got.Lines[0].NetAfter != "5570.00" || got.Lines[1].NetAfter != "5570.00" {
		t.Errorf("net after = %s, %s", got.Lines[0].NetAfter, got.Lines[1].NetAfter)
	}
	if got.TotalExpense != "1500.00" || got.TotalNet != "5570.00" {
		t.Errorf("totals = %s / %s", got.TotalExpense, got.TotalNet)
	}
}

func TestAllocateRunningBalance(t *testing.T) {
	ts := newTestServer(t)
	body := `{
		"incomes": [{"sender": "Acme", "type": "1099-NEC", "date": "2024-03-15", "gross": "10000"}],
		"expenses": [
			{"sender": "Acme", "name": "Laptop", "amount": "1000"},
			{"sender": "Acme", "name": "Desk", "amount": "500"}
		],
		"policy": "running_balance"
	}`
	resp := postJSON(t, ts, "/api/allocate", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got allocationJSON
	decodeBody(t, resp, &got)
	if got.Lines[0].NetAfter != "6070.00" || got.Lines[1].NetAfter != "5570.00" {
		t.Errorf("net after = %s, %s", got.Lines[0].NetAfter, got.Lines[1].NetAfter)
	}
}

func TestAllocateUnknownSender(t *testing.T) {
	ts := newTestServer(t)
	body := `{
		"incomes": [{"sender": "Acme", "type": "1099-NEC", "date": "2024-03-15", "gross": "10000"}],
		"expenses": [{"sender": "Nowhere", "name": "Laptop", "amount": "1000"}]
	}`
	resp := postJSON(t, ts, "/api/allocate", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestEntryLifecycle(t *testing.T) {
	ts := newTestServer(t)

	create := `{
		"title": "March checks",
		"incomes": ` + sampleIncomes + `,
		"expenses": [{"sender": "Acme", "name": "Laptop", "amount": "1000"}]
	}`
	resp := postJSON(t, ts, "/api/entries", create)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created map[string]int64
	decodeBody(t, resp, &created)
	if created["id"] == 0 {
		t.Fatal("created id = 0")
	}

	resp = getJSON(t, ts, "/api/entries")
	var list []entrySummaryJSON
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].Title != "March checks" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].IncomeRows != 2 || list[0].ExpenseRows != 1 {
		t.Fatalf("row counts = %d/%d", list[0].IncomeRows, list[0].ExpenseRows)
	}

	resp = getJSON(t, ts, "/api/entries/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var entry entryJSON
	decodeBody(t, resp, &entry)
	if entry.Rows[0].Net != "7070.00" {
		t.Errorf("stored net = %s", entry.Rows[0].Net)
	}
	if entry.Expenses[0].NetAfter != "6070.00" {
		t.Errorf("stored net after = %s", entry.Expenses[0].NetAfter)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/entries/1", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	resp = getJSON(t, ts, "/api/entries/1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
}

func TestCreateEntryRequiresTitle(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/api/entries", `{"title": " ", "incomes": `+sampleIncomes+`}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got errorResponse
	decodeBody(t, resp, &got)
	if !strings.Contains(got.Error, "title") {
		t.Errorf("error = %q", got.Error)
	}
}

func TestStatementsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/entries", `{"title": "March", "incomes": `+sampleIncomes+`}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	resp = getJSON(t, ts, "/api/statements")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st statementJSON
	decodeBody(t, resp, &st)
	if len(st.Monthly) != 1 || len(st.Yearly) != 1 {
		t.Fatalf("buckets = %d monthly, %d yearly", len(st.Monthly), len(st.Yearly))
	}
	m := st.Monthly[0]
	if m.Month != "2024-03" || m.TotalIncome != "12000.00" {
		t.Errorf("month bucket = %+v", m)
	}
	// Full self-employed liability on the 1099-NEC, zero on the W-2.
	if m.TotalTaxDue != "2930.00" {
		t.Errorf("taxes due = %s", m.TotalTaxDue)
	}

	resp = getJSON(t, ts, "/api/statements?type=W-2")
	var filtered statementJSON
	decodeBody(t, resp, &filtered)
	if len(filtered.Monthly) != 1 || len(filtered.Monthly[0].Incomes) != 1 {
		t.Fatalf("filtered buckets = %+v", filtered.Monthly)
	}
	if filtered.Monthly[0].Incomes[0].Sender != "Globex" {
		t.Errorf("filtered sender = %s", filtered.Monthly[0].Incomes[0].Sender)
	}
}

func TestEntryReportDownload(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/entries", `{"title": "March", "incomes": `+sampleIncomes+`}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	resp = getJSON(t, ts, "/api/entries/1/report.xlsx")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "report_1.xlsx") {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestStatementsWorkbookDownload(t *testing.T) {
	ts := newTestServer(t)
	resp := getJSON(t, ts, "/api/statements/report.xlsx")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "statements.xlsx") {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestQueueStatementsReportWithoutQueue(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/api/statements/report", ``)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := getJSON(t, ts, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}
}
