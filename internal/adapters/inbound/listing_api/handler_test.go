package listing_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/listing-sniper/internal/core/schedule"
	"github.com/charleschow/listing-sniper/internal/core/tracking"
	"github.com/charleschow/listing-sniper/internal/core/trading"
)

type fakeScheduler struct {
	added    []trading.TradeIntent
	listings []schedule.Listing
	addErr   error
	removed  []string
}

func (f *fakeScheduler) Add(intent trading.TradeIntent) (schedule.Listing, error) {
	if f.addErr != nil {
		return schedule.Listing{}, f.addErr
	}
	f.added = append(f.added, intent)
	l := schedule.Listing{ID: "L1", Intent: intent, Status: schedule.StatusPending}
	f.listings = append(f.listings, l)
	return l, nil
}

func (f *fakeScheduler) Remove(id string) error {
	for i, l := range f.listings {
		if l.ID == id {
			f.listings = append(f.listings[:i], f.listings[i+1:]...)
			f.removed = append(f.removed, id)
			return nil
		}
	}
	return schedule.ErrNotFound
}

func (f *fakeScheduler) List() ([]schedule.Listing, error) { return f.listings, nil }

type fakeRuns struct {
	limit int
	runs  []tracking.RunRecord
}

func (f *fakeRuns) Recent(limit int) ([]tracking.RunRecord, error) {
	f.limit = limit
	return f.runs, nil
}

func newServer(s *fakeScheduler, runs *fakeRuns) *httptest.Server {
	return httptest.NewServer(NewHandler(s, runs, decimal.NewFromInt(12)).Routes())
}

const validBody = `{"symbol":"abcusdt","quote_amount":"100","api_key":"mx0vglKEY1234","api_secret":"s3cret","listing_time":"2030-01-01T12:00:00Z"}`

func TestAddListing(t *testing.T) {
	s := &fakeScheduler{}
	srv := newServer(s, &fakeRuns{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/listings", "application/json", strings.NewReader(validBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var view schedule.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Symbol != "ABCUSDT" || view.ProfitPct != "12" || view.APIKey != "****1234" {
		t.Errorf("unexpected view %+v", view)
	}
	if len(s.added) != 1 || s.added[0].Credentials.APISecret != "s3cret" {
		t.Errorf("scheduler did not receive the intent: %+v", s.added)
	}
	if !s.added[0].ListingTime.Equal(time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected listing time 2030-01-01T12:00Z, got %s", s.added[0].ListingTime)
	}
}

func TestAddListingErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		addErr error
		want   int
	}{
		{"missing secret", `{"symbol":"abcusdt","quote_amount":"100","api_key":"k"}`, nil, http.StatusBadRequest},
		{"bad json", `{"symbol":`, nil, http.StatusBadRequest},
		{"listing too late", validBody, fmt.Errorf("%w: ABCUSDT", schedule.ErrTooLate), http.StatusUnprocessableEntity},
		{"store failure", validBody, fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(&fakeScheduler{addErr: tt.addErr}, &fakeRuns{})
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/listings", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestListNeverExposesSecret(t *testing.T) {
	s := &fakeScheduler{listings: []schedule.Listing{{
		ID:     "L1",
		Intent: trading.TradeIntent{Symbol: "ABCUSDT", Credentials: trading.Credentials{APIKey: "key-abcd", APISecret: "topsecret"}},
		Status: schedule.StatusPending,
	}}}
	srv := newServer(s, &fakeRuns{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listings")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var raw []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1 {
		t.Fatalf("Expected 1 listing, got %d", len(raw))
	}
	if raw[0]["api_key"] != "****abcd" {
		t.Errorf("Expected redacted key, got %v", raw[0]["api_key"])
	}
	for k, v := range raw[0] {
		if v == "topsecret" {
			t.Errorf("secret leaked in field %s", k)
		}
	}
}

func TestRemoveListing(t *testing.T) {
	s := &fakeScheduler{listings: []schedule.Listing{{ID: "L1"}}}
	srv := newServer(s, &fakeRuns{})
	defer srv.Close()

	del := func(id string) int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/listings/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := del("L1"); got != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", got)
	}
	if got := del("L1"); got != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", got)
	}
}

func TestRecentRuns(t *testing.T) {
	runs := &fakeRuns{runs: []tracking.RunRecord{{RunID: "r1", Symbol: "ABCUSDT", FinalState: "SELL_CONFIRMED"}}}
	srv := newServer(&fakeScheduler{}, runs)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got []tracking.RunRecord
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if runs.limit != 5 || len(got) != 1 || got[0].RunID != "r1" {
		t.Errorf("Expected r1 with limit 5, got %+v (limit %d)", got, runs.limit)
	}

	bad, err := http.Get(srv.URL + "/runs?limit=-1")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative limit, got %d", bad.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(&fakeScheduler{}, &fakeRuns{})
	defer srv.Close()

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: Expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(&fakeScheduler{}, &fakeRuns{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/listings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}
