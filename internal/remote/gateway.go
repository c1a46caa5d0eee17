// Package remote is the boundary to the authoritative remote document
// database. The remote store is reachable over plain request/response
// calls; writes are attempted once with no retry policy beyond the
// transport timeout — queued replay is the caller's concern.
package remote

import (
	"context"

	"github.com/starford/mnemo/internal/models"
)

// Gateway is the remote document database surface the orchestrator depends
// on. Collections live under users/{userId}/notes and users/{userId}/tags;
// a per-user settings document sits beside them.
type Gateway interface {
	// PullAll fetches every note and tag for the user, keyed by document id.
	// Notes arrive ordered by last update (newest first) and tags by name;
	// server temporal types are restored to time.Time.
	PullAll(ctx context.Context, userID string) (notes, tags map[string]map[string]any, err error)

	// Create stores a new document and returns the server-assigned id.
	// Creation and update times are stamped server-side.
	Create(ctx context.Context, userID, kind string, doc map[string]any) (string, error)

	// Update overwrites the document's fields and stamps a fresh server-side
	// update time. A local-temporary id is stripped to its remote form first.
	Update(ctx context.Context, userID, kind, id string, doc map[string]any) error

	// Delete removes the document. A missing document counts as success.
	Delete(ctx context.Context, userID, kind, id string) error

	// Settings reads the per-user settings document.
	Settings(ctx context.Context, userID string) (models.Settings, error)

	// SaveSettings overwrites the per-user settings document.
	SaveSettings(ctx context.Context, userID string, s models.Settings) error
}
