package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/mnemo/internal/models"
)

// ExportOptions shapes the output document.
type ExportOptions struct {
	// WithTags wraps the output in an envelope carrying tags and export
	// metadata. Without it the output is a bare array of notes.
	WithTags bool
	// WithTimestamps keeps createdAt/updatedAt on every record.
	WithTimestamps bool
	// Minified skips indentation.
	Minified bool
}

type exportInfo struct {
	ExportedAt time.Time `json:"exportedAt"`
	TotalNotes int       `json:"totalNotes"`
	TotalTags  int       `json:"totalTags"`
	Format     string    `json:"format"`
	Version    string    `json:"version"`
}

type envelope struct {
	Notes []map[string]any `json:"notes"`
	Tags  []map[string]any `json:"tags"`
	Info  exportInfo       `json:"exportInfo"`
}

// Export renders the user's notes (and optionally tags) as a JSON document
// suitable for re-import. The owning user id never leaves the app.
func Export(notes []models.Note, tags []models.Tag, opts ExportOptions) ([]byte, error) {
	noteDocs := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		n.UserID = ""
		noteDocs = append(noteDocs, pruneTimes(n.Document(), opts.WithTimestamps))
	}

	var payload any
	if opts.WithTags {
		tagDocs := make([]map[string]any, 0, len(tags))
		for _, t := range tags {
			t.UserID = ""
			tagDocs = append(tagDocs, pruneTimes(t.Document(), opts.WithTimestamps))
		}
		payload = envelope{
			Notes: noteDocs,
			Tags:  tagDocs,
			Info: exportInfo{
				ExportedAt: time.Now().UTC(),
				TotalNotes: len(noteDocs),
				TotalTags:  len(tagDocs),
				Format:     "json",
				Version:    "1.0",
			},
		}
	} else {
		payload = noteDocs
	}

	var (
		out []byte
		err error
	)
	if opts.Minified {
		out, err = json.Marshal(payload)
	} else {
		out, err = json.MarshalIndent(payload, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("transfer: export: %w", err)
	}
	return out, nil
}

func pruneTimes(doc map[string]any, keep bool) map[string]any {
	if !keep {
		delete(doc, "createdAt")
		delete(doc, "updatedAt")
	}
	return doc
}
