package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/models"
)

func TestCreateReturnsServerID(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "srv1"})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "tok", nil)
	doc := map[string]any{
		"id":        "local_1_abc",
		"title":     "x",
		"isLocal":   true,
		"createdAt": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	id, err := g.Create(context.Background(), "u1", models.KindNotes, doc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "srv1" {
		t.Errorf("id = %q", id)
	}
	if gotPath != "/v1/users/u1/notes" {
		t.Errorf("path = %q", gotPath)
	}
	if _, ok := gotBody["id"]; ok {
		t.Error("client-side id leaked to the wire")
	}
	if _, ok := gotBody["isLocal"]; ok {
		t.Error("isLocal leaked to the wire")
	}
	if _, ok := gotBody["createdAt"].(string); !ok {
		t.Errorf("createdAt not normalized: %T", gotBody["createdAt"])
	}
}

func TestUpdateStripsLocalPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", nil)
	err := g.Update(context.Background(), "u1", models.KindNotes, "local_1_abc", map[string]any{"title": "y"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if gotPath != "/v1/users/u1/notes/1_abc" {
		t.Errorf("path = %q, local prefix not stripped", gotPath)
	}
}

func TestDeleteNotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such document", http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", nil)
	if err := g.Delete(context.Background(), "u1", models.KindNotes, "gone"); err != nil {
		t.Errorf("Delete of missing doc = %v, want nil", err)
	}
}

func TestUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "wrong", nil)
	_, err := g.Create(context.Background(), "u1", models.KindNotes, map[string]any{})
	if !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestServerErrorMapsToRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", nil)
	err := g.Update(context.Background(), "u1", models.KindTags, "t1", map[string]any{})
	if !errors.Is(err, apperr.ErrRemoteUnavailable) {
		t.Errorf("err = %v, want ErrRemoteUnavailable", err)
	}
}

func TestConnectionRefusedMapsToRemoteUnavailable(t *testing.T) {
	g := NewHTTPGateway("http://127.0.0.1:1", "", &http.Client{Timeout: 200 * time.Millisecond})
	_, err := g.Create(context.Background(), "u1", models.KindNotes, map[string]any{})
	if !errors.Is(err, apperr.ErrRemoteUnavailable) {
		t.Errorf("err = %v, want ErrRemoteUnavailable", err)
	}
}

func TestPullAllRestoresTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var docs []map[string]any
		switch r.URL.Path {
		case "/v1/users/u1/notes":
			if r.URL.Query().Get("orderBy") != "updatedAt" {
				t.Errorf("notes orderBy = %q", r.URL.Query().Get("orderBy"))
			}
			docs = []map[string]any{
				{"id": "n1", "title": "a", "updatedAt": "2025-05-01T10:00:00Z"},
				{"title": "no id, skipped"},
			}
		case "/v1/users/u1/tags":
			docs = []map[string]any{
				{"id": "t1", "name": "work", "createdAt": "2025-05-01T09:00:00Z"},
			}
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": docs})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", nil)
	notes, tags, err := g.PullAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PullAll: %v", err)
	}
	if len(notes) != 1 || len(tags) != 1 {
		t.Fatalf("notes = %d, tags = %d", len(notes), len(tags))
	}
	if _, ok := notes["n1"]["updatedAt"].(time.Time); !ok {
		t.Errorf("note timestamp not restored: %T", notes["n1"]["updatedAt"])
	}
	if notes["n1"]["isLocal"] != false {
		t.Errorf("pulled note isLocal = %v", notes["n1"]["isLocal"])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	stored := models.Settings{CardsPerSession: 30, TotalNotes: 5, TotalTags: 2}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&stored)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(stored)
		}
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", nil)
	if err := g.SaveSettings(context.Background(), "u1", models.Settings{CardsPerSession: 10}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := g.Settings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got.CardsPerSession != 10 {
		t.Errorf("cardsPerSession = %d", got.CardsPerSession)
	}
}
