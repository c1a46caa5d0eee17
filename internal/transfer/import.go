// Package transfer implements JSON import and export of a user's notes.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/starford/mnemo/internal/cache"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/noteservice"
)

// maxReportMessages caps the per-item error lines in an import report.
const maxReportMessages = 5

// NoteWriter is the slice of the note service an import needs.
type NoteWriter interface {
	ListNotes(ctx context.Context, sess noteservice.Session, filterTag string) []models.Note
	CreateNote(ctx context.Context, sess noteservice.Session, in noteservice.NoteInput) (models.Note, error)
	UpdateNote(ctx context.Context, sess noteservice.Session, id string, in noteservice.NoteInput) (models.Note, error)
}

// ImportOptions controls collision handling.
type ImportOptions struct {
	// Overwrite replaces cached notes whose id matches an imported item.
	// When false such items are skipped.
	Overwrite bool
}

// Report summarizes an import run.
type Report struct {
	Success  int      `json:"success"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	Messages []string `json:"messages,omitempty"`
}

// ParseImport reads a JSON array of note objects. Every item must carry at
// least one of title, body or text; any malformed item fails the whole
// parse, so nothing is written for a bad file.
func ParseImport(r io.Reader) ([]models.Note, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("transfer: parse import: %w", err)
	}
	notes := make([]models.Note, 0, len(raw))
	for i, doc := range raw {
		title, _ := doc["title"].(string)
		body, _ := doc["body"].(string)
		text, _ := doc["text"].(string)
		if title == "" && body == "" && text == "" {
			return nil, fmt.Errorf("transfer: parse import: item %d: needs one of title, body or text", i+1)
		}
		if body == "" {
			doc["body"] = text
		}
		// Both tagsArray and the shorter tags key are accepted.
		if _, ok := doc["tagsArray"]; !ok {
			if tags, ok := doc["tags"]; ok {
				doc["tagsArray"] = tags
			}
		}
		for _, key := range []string{"createdAt", "updatedAt"} {
			if v, ok := doc[key]; ok {
				doc[key] = cache.Restore(v)
			}
		}
		note := models.NoteFromDocument(doc)
		if note.Title == "" {
			note.Title = firstLine(note.Body)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// Import writes parsed items through the note service one by one. Items are
// independent: a failed item is counted and reported, the rest proceed.
func Import(ctx context.Context, sess noteservice.Session, svc NoteWriter, items []models.Note, opts ImportOptions) Report {
	existing := make(map[string]bool)
	for _, n := range svc.ListNotes(ctx, sess, "") {
		existing[n.ID] = true
	}

	var report Report
	var overflow int
	fail := func(i int, title string, err error) {
		report.Errors++
		if len(report.Messages) < maxReportMessages {
			report.Messages = append(report.Messages, fmt.Sprintf("item %d (%q): %v", i+1, title, err))
		} else {
			overflow++
		}
	}

	for i, item := range items {
		in := noteservice.NoteInput{
			Title:     item.Title,
			Body:      item.Body,
			Subbody:   item.Subbody,
			Notes:     item.Notes,
			Rating:    item.Rating,
			Tags:      item.Tags,
			CreatedAt: item.CreatedAt,
		}
		if item.ID != "" && existing[item.ID] {
			if !opts.Overwrite {
				report.Skipped++
				continue
			}
			if _, err := svc.UpdateNote(ctx, sess, item.ID, in); err != nil {
				fail(i, item.Title, err)
				continue
			}
		} else {
			if _, err := svc.CreateNote(ctx, sess, in); err != nil {
				fail(i, item.Title, err)
				continue
			}
		}
		report.Success++
	}
	if overflow > 0 {
		report.Messages = append(report.Messages, fmt.Sprintf("and %d more", overflow))
	}
	return report
}

func firstLine(s string) string {
	const max = 50
	for i, r := range s {
		if r == '\n' || i >= max {
			return s[:i]
		}
	}
	return s
}
