package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dbernard/hdlc/hdlc"
	"github.com/dbernard/hdlc/mux"
)

type fakeSource struct {
	stats mux.Stats
}

func (f *fakeSource) Stats() mux.Stats { return f.stats }

func TestStatsEndpointReportsSnapshot(t *testing.T) {
	src := &fakeSource{stats: mux.Stats{
		Stats:      hdlc.Stats{Bytes: 14, FCS: 0},
		BadChannel: 0,
	}}

	srv := New(":0", src, nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got mux.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Bytes != 14 || got.FCS != 0 {
		t.Errorf("got %+v, want Bytes=14 FCS=0", got)
	}
}

func TestStatsEndpointRejectsNonGet(t *testing.T) {
	src := &fakeSource{}
	srv := New(":0", src, nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/stats", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
