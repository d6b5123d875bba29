package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/pitwall/internal/testutil"
	"github.com/banshee-data/pitwall/internal/units"
)

func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes(t *testing.T) {
	t.Parallel()

	srv, _ := newRaceServer(t, units.KPH)
	mux := http.NewServeMux()
	srv.AttachAdminRoutes(mux)

	tests := []struct {
		name     string
		path     string
		contains []string
	}{
		{"packets", "/debug/packets", []string{"<table", "Motion", "Lap Data"}},
		{"standings", "/debug/standings", []string{"<table", "VER", "Leader", "+1.00s"}},
		{"snapshot", "/debug/snapshot", []string{`"session_id"`, `"player_index":0`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewTestRecorder()
			mux.ServeHTTP(rec, localHostRequest(http.MethodGet, tt.path))
			testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
			for _, want := range tt.contains {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestAttachAdminRoutes_SnapshotMethod(t *testing.T) {
	t.Parallel()

	srv, _ := newRaceServer(t, units.KPH)
	mux := http.NewServeMux()
	srv.AttachAdminRoutes(mux)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/snapshot"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
