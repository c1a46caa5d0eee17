package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/noteservice"
	"github.com/starford/mnemo/internal/testutil"
)

// memGateway is an always-online in-memory remote.
type memGateway struct {
	mu       sync.Mutex
	nextID   int
	docs     map[string]map[string]map[string]map[string]any
	settings map[string]models.Settings
}

func newMemGateway() *memGateway {
	return &memGateway{
		docs:     make(map[string]map[string]map[string]map[string]any),
		settings: make(map[string]models.Settings),
	}
}

func (g *memGateway) bucket(userID, kind string) map[string]map[string]any {
	if g.docs[userID] == nil {
		g.docs[userID] = make(map[string]map[string]map[string]any)
	}
	if g.docs[userID][kind] == nil {
		g.docs[userID][kind] = make(map[string]map[string]any)
	}
	return g.docs[userID][kind]
}

func (g *memGateway) PullAll(_ context.Context, userID string) (map[string]map[string]any, map[string]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	notes := make(map[string]map[string]any)
	for id, doc := range g.bucket(userID, models.KindNotes) {
		notes[id] = doc
	}
	tags := make(map[string]map[string]any)
	for id, doc := range g.bucket(userID, models.KindTags) {
		tags[id] = doc
	}
	return notes, tags, nil
}

func (g *memGateway) Create(_ context.Context, userID, kind string, doc map[string]any) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("srv-%d", g.nextID)
	doc["id"] = id
	g.bucket(userID, kind)[id] = doc
	return id, nil
}

func (g *memGateway) Update(_ context.Context, userID, kind, id string, doc map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bucket(userID, kind)[id] = doc
	return nil
}

func (g *memGateway) Delete(_ context.Context, userID, kind, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.bucket(userID, kind), id)
	return nil
}

func (g *memGateway) Settings(_ context.Context, userID string) (models.Settings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.settings[userID]
	if !ok {
		return models.Settings{}, apperr.ErrNotFound
	}
	return s, nil
}

func (g *memGateway) SaveSettings(_ context.Context, userID string, s models.Settings) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settings[userID] = s
	return nil
}

// testEnv sets up a service backed by a temp store and a router.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc := noteservice.NewService(testutil.TestStore(t), newMemGateway(), testutil.TestLogger())
	t.Cleanup(svc.Wait)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router
}

func do(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetNote(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{
		"title": "hello", "body": "world", "tagsArray": []string{"go"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	svc.Wait()

	w = do(t, router, http.MethodGet, "/notes?tag=go", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Notes[0].Title != "hello" {
		t.Fatalf("list = %+v", list)
	}

	w = do(t, router, http.MethodGet, "/notes/"+list.Notes[0].ID, "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
}

func TestCreateNoteValidation(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{"body": "no title"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMissingUserHeader(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/notes", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("with token status = %d, want 200", w.Code)
	}
}

func TestUserIsolation(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{"title": "mine"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	svc.Wait()

	w = do(t, router, http.MethodGet, "/notes", "u2", nil)
	var list NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 0 {
		t.Fatalf("u2 sees u1's notes: %+v", list)
	}
}

func TestRateNote(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{"title": "card"})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	svc.Wait()

	var list NoteListResponse
	w = do(t, router, http.MethodGet, "/notes", "u1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	id := list.Notes[0].ID

	w = do(t, router, http.MethodPut, "/notes/"+id+"/rating", "u1", map[string]any{"rating": 99})
	if w.Code != http.StatusOK {
		t.Fatalf("rate status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	if note.Rating != 5 {
		t.Errorf("rating = %d, want clamped 5", note.Rating)
	}
}

func TestRateNoteCoercesNonNumeric(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{"title": "card", "rating": 3})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	svc.Wait()

	var list NoteListResponse
	w = do(t, router, http.MethodGet, "/notes", "u1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	id := list.Notes[0].ID

	cases := []struct {
		name   string
		rating any
		want   int
	}{
		{"garbage string", "definitely", 0},
		{"null", nil, 0},
		{"numeric string", "4", 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, "/notes/"+id+"/rating", "u1", map[string]any{"rating": tc.rating})
			if w.Code != http.StatusOK {
				t.Fatalf("rate status = %d, body = %s", w.Code, w.Body.String())
			}
			var note models.Note
			if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
				t.Fatal(err)
			}
			if note.Rating != tc.want {
				t.Errorf("rating = %d, want %d", note.Rating, tc.want)
			}
		})
	}
}

func TestDeleteNote(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{"title": "gone"})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	svc.Wait()

	var list NoteListResponse
	w = do(t, router, http.MethodGet, "/notes", "u1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}

	w = do(t, router, http.MethodDelete, "/notes/"+list.Notes[0].ID, "u1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/notes/"+list.Notes[0].ID, "u1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", w.Code)
	}
}

func TestTagEndpoints(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/tags", "u1", map[string]any{"name": "work", "color": "#fff"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create tag = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/tags", "u1", map[string]any{"name": "WORK"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate tag = %d, want 400", w.Code)
	}
	svc.Wait()

	var list TagListResponse
	w = do(t, router, http.MethodGet, "/tags", "u1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Tags[0].Name != "work" {
		t.Fatalf("tags = %+v", list)
	}
}

func TestSyncEndpoint(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", "u1", map[string]any{"title": "synced"})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	svc.Wait()

	w = do(t, router, http.MethodPost, "/sync", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SyncResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.LastSync.IsZero() {
		t.Fatalf("sync response = %+v", resp)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	svc, router := testEnv(t, "")

	payload := `[{"title": "imported", "tagsArray": ["go"]}, {"text": "body only"}]`
	w := do(t, router, http.MethodPost, "/import", "u1", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	var report struct {
		Success int `json:"success"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Success != 2 {
		t.Fatalf("report = %s", w.Body.String())
	}
	svc.Wait()

	w = do(t, router, http.MethodPost, "/export?tags=1&timestamps=1", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"imported"`) {
		t.Errorf("export missing note: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "exportInfo") {
		t.Errorf("export missing envelope: %s", w.Body.String())
	}
}

func TestImportBadPayload(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/import", "u1", `{"title": "not an array"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/settings", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get settings = %d", w.Code)
	}
	var settings models.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatal(err)
	}
	if settings.CardsPerSession != models.DefaultCardsPerSession {
		t.Fatalf("default cards = %d", settings.CardsPerSession)
	}

	w = do(t, router, http.MethodPut, "/settings", "u1", map[string]any{"cardsPerSession": 10})
	if w.Code != http.StatusOK {
		t.Fatalf("put settings = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/settings", "u1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatal(err)
	}
	if settings.CardsPerSession != 10 {
		t.Fatalf("cards = %d, want 10", settings.CardsPerSession)
	}
}
