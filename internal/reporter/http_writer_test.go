package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reparto-backend/internal/models"
)

func TestHTTPWriterPostsReport(t *testing.T) {
	var got models.PositionReport
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/courier/position" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewHTTPWriter(srv.URL+"/", "tok")
	if err := w.WritePosition(context.Background(), "c1", at(0, 12)); err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Latitude != 19.43 || got.Accuracy == nil || *got.Accuracy != 12 {
		t.Errorf("report = %+v", got)
	}
}

func TestHTTPWriterSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	if err := NewHTTPWriter(srv.URL, "tok").WritePosition(context.Background(), "c1", at(0, 12)); err == nil {
		t.Fatal("expected error for 403")
	}
}
