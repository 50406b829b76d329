package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/snapshot"
	"github.com/resonance-logs/meterd/internal/storage"
)

func testServer(t *testing.T) (*httptest.Server, *encounter.Engine) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := encounter.New(encounter.DefaultAttemptConfig(), nil, nil, nil)
	feed := snapshot.NewFeed(eng, nil, nil)

	router, _ := NewRouter(RouterConfig{
		Engine:         eng,
		Feed:           feed,
		DB:             db,
		DisableLogging: true,
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, eng
}

func TestHandleResetReturnsOK(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Post(ts.URL+"/commands/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandlePauseTogglesState(t *testing.T) {
	ts, eng := testServer(t)
	resp, err := http.Post(ts.URL+"/commands/pause", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !eng.IsPaused() {
		t.Fatal("expected engine to be paused after toggle")
	}
}

func TestHandleBossOnlyDPSRejectsBadBody(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Post(ts.URL+"/commands/boss-only-dps", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSubscribeRejectsBadUID(t *testing.T) {
	ts, _ := testServer(t)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/commands/subscribe/dps/not-a-number", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSubscribeUnsubscribeRoundTrip(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Post(ts.URL+"/commands/subscribe/dps/100", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe status = %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/commands/subscribe/dps/100", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unsubscribe status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleRecentEncountersEmpty(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/encounters")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleEncounterActorsBadID(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/encounters/not-a-number/actors")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
