package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/scribe/internal/engine"
)

func TestGetStats(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, id := range []int64{1, 2} {
		resp := postJSON(t, ts.URL+"/v1/jobs", engine.JobRequest{ID: id, Model: "idle"})
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.PendingJobs != 2 {
		t.Errorf("pending_jobs = %d, want 2", stats.PendingJobs)
	}
	if stats.Backends != 2 || stats.Closing {
		t.Errorf("stats = %+v", stats)
	}
}
