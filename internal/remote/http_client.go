package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/cache"
	"github.com/starford/mnemo/internal/localid"
	"github.com/starford/mnemo/internal/models"
)

// HTTPGateway talks to the remote document database over its REST surface:
//
//	GET    /v1/users/{uid}/{kind}            list a collection
//	POST   /v1/users/{uid}/{kind}            create, returns {"id": ...}
//	PUT    /v1/users/{uid}/{kind}/{id}       overwrite fields
//	DELETE /v1/users/{uid}/{kind}/{id}       idempotent delete
//	GET    /v1/users/{uid}/settings          per-user settings document
//	PUT    /v1/users/{uid}/settings
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway against baseURL. A nil httpClient gets a
// default with a 15 second timeout.
func NewHTTPGateway(baseURL, token string, httpClient *http.Client) *HTTPGateway {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGateway{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

var _ Gateway = (*HTTPGateway)(nil)

type listResponse struct {
	Documents []map[string]any `json:"documents"`
}

type createResponse struct {
	ID string `json:"id"`
}

// PullAll fetches the user's notes (updatedAt descending) and tags (name
// ascending) and returns them as id-keyed mappings with timestamps restored.
func (g *HTTPGateway) PullAll(ctx context.Context, userID string) (map[string]map[string]any, map[string]map[string]any, error) {
	notes, err := g.list(ctx, userID, models.KindNotes, "updatedAt", "desc")
	if err != nil {
		return nil, nil, err
	}
	tags, err := g.list(ctx, userID, models.KindTags, "name", "asc")
	if err != nil {
		return nil, nil, err
	}
	return notes, tags, nil
}

func (g *HTTPGateway) list(ctx context.Context, userID, kind, orderBy, dir string) (map[string]map[string]any, error) {
	q := url.Values{}
	q.Set("orderBy", orderBy)
	q.Set("dir", dir)
	var resp listResponse
	if err := g.doJSON(ctx, http.MethodGet, g.collectionPath(userID, kind)+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(resp.Documents))
	for _, doc := range resp.Documents {
		restored := cache.Restore(doc).(map[string]any)
		id, _ := restored["id"].(string)
		if id == "" {
			continue
		}
		restored["isLocal"] = false
		out[id] = restored
	}
	return out, nil
}

// Create stores a new document and returns the server-assigned id.
func (g *HTTPGateway) Create(ctx context.Context, userID, kind string, doc map[string]any) (string, error) {
	var resp createResponse
	if err := g.doJSON(ctx, http.MethodPost, g.collectionPath(userID, kind), outbound(doc), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("remote: create %s: server returned empty id", kind)
	}
	return resp.ID, nil
}

// Update overwrites the remote document. The local-temporary prefix, if the
// record has not been promoted yet, is stripped so the write still targets
// the document the record will map to.
func (g *HTTPGateway) Update(ctx context.Context, userID, kind, id string, doc map[string]any) error {
	return g.doJSON(ctx, http.MethodPut, g.documentPath(userID, kind, localid.Strip(id)), outbound(doc), nil)
}

// Delete removes the remote document; a missing document counts as success.
func (g *HTTPGateway) Delete(ctx context.Context, userID, kind, id string) error {
	err := g.doJSON(ctx, http.MethodDelete, g.documentPath(userID, kind, localid.Strip(id)), nil, nil)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// Settings reads the per-user settings document.
func (g *HTTPGateway) Settings(ctx context.Context, userID string) (models.Settings, error) {
	var s models.Settings
	err := g.doJSON(ctx, http.MethodGet, g.settingsPath(userID), nil, &s)
	return s, err
}

// SaveSettings overwrites the per-user settings document.
func (g *HTTPGateway) SaveSettings(ctx context.Context, userID string, s models.Settings) error {
	return g.doJSON(ctx, http.MethodPut, g.settingsPath(userID), s, nil)
}

func (g *HTTPGateway) collectionPath(userID, kind string) string {
	return fmt.Sprintf("/v1/users/%s/%s", url.PathEscape(userID), url.PathEscape(kind))
}

func (g *HTTPGateway) documentPath(userID, kind, id string) string {
	return g.collectionPath(userID, kind) + "/" + url.PathEscape(id)
}

func (g *HTTPGateway) settingsPath(userID string) string {
	return fmt.Sprintf("/v1/users/%s/settings", url.PathEscape(userID))
}

// outbound prepares a document for the wire: identity and sync-state fields
// stay client-side, temporal values take the portable string form.
func outbound(doc map[string]any) map[string]any {
	out := cache.Normalize(doc).(map[string]any)
	delete(out, "id")
	delete(out, "isLocal")
	return out
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w (%v)", method, path, apperr.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("remote: %s %s: %w", method, path, apperr.ErrUnauthenticated)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("remote: %s %s: %w", method, path, apperr.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote: %s %s: %w (http %d: %s)",
			method, path, apperr.ErrRemoteUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}
