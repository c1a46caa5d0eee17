// Package models defines the domain types for mnemo.
package models

import "time"

// Kinds of cached collections. They double as the storage key suffix for a
// user partition and as the remote collection name.
const (
	KindNotes = "notes"
	KindTags  = "tags"
)

// Note is a single spaced-review note. Its id is either a server-assigned
// document id or a local-temporary one while the note is unsynced.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Subbody   string    `json:"subbody"`
	Notes     string    `json:"notes"`
	Rating    int       `json:"rating"`
	Tags      []string  `json:"tagsArray"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IsLocal   bool      `json:"isLocal"`
	UserID    string    `json:"userId,omitempty"`
}

// Tag labels notes. Name is unique per user (case-insensitive). UsageCount
// is a cached projection over the notes collection and is never
// authoritative; it is recomputed after every note mutation.
type Tag struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	UsageCount int       `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
	IsLocal    bool      `json:"isLocal"`
	UserID     string    `json:"userId,omitempty"`
}

// Settings is the per-user settings document kept in the remote store.
type Settings struct {
	CardsPerSession int       `json:"cardsPerSession"`
	TotalNotes      int       `json:"totalNotes"`
	TotalTags       int       `json:"totalTags"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DefaultCardsPerSession is used when the settings document is absent.
const DefaultCardsPerSession = 20

// ClampRating coerces any rating input into the 0..5 range.
func ClampRating(r int) int {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}

// Document converts the note to the cache/remote document representation.
func (n Note) Document() map[string]any {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"body":      n.Body,
		"subbody":   n.Subbody,
		"notes":     n.Notes,
		"rating":    n.Rating,
		"tagsArray": tags,
		"isLocal":   n.IsLocal,
	}
	if n.UserID != "" {
		doc["userId"] = n.UserID
	}
	if !n.CreatedAt.IsZero() {
		doc["createdAt"] = n.CreatedAt
	}
	if !n.UpdatedAt.IsZero() {
		doc["updatedAt"] = n.UpdatedAt
	}
	return doc
}

// NoteFromDocument reconstructs a Note from a cache or remote document.
// Missing or mistyped fields degrade to zero values; ratings are clamped.
func NoteFromDocument(doc map[string]any) Note {
	return Note{
		ID:        docString(doc, "id"),
		Title:     docString(doc, "title"),
		Body:      docString(doc, "body"),
		Subbody:   docString(doc, "subbody"),
		Notes:     docString(doc, "notes"),
		Rating:    ClampRating(docInt(doc, "rating")),
		Tags:      docStrings(doc, "tagsArray"),
		CreatedAt: docTime(doc, "createdAt"),
		UpdatedAt: docTime(doc, "updatedAt"),
		IsLocal:   docBool(doc, "isLocal"),
		UserID:    docString(doc, "userId"),
	}
}

// Document converts the tag to the cache/remote document representation.
func (t Tag) Document() map[string]any {
	doc := map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"color":      t.Color,
		"usageCount": t.UsageCount,
		"isLocal":    t.IsLocal,
	}
	if t.UserID != "" {
		doc["userId"] = t.UserID
	}
	if !t.CreatedAt.IsZero() {
		doc["createdAt"] = t.CreatedAt
	}
	return doc
}

// TagFromDocument reconstructs a Tag from a cache or remote document.
func TagFromDocument(doc map[string]any) Tag {
	return Tag{
		ID:         docString(doc, "id"),
		Name:       docString(doc, "name"),
		Color:      docString(doc, "color"),
		UsageCount: docInt(doc, "usageCount"),
		CreatedAt:  docTime(doc, "createdAt"),
		IsLocal:    docBool(doc, "isLocal"),
		UserID:     docString(doc, "userId"),
	}
}

func docString(doc map[string]any, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

func docBool(doc map[string]any, key string) bool {
	if b, ok := doc[key].(bool); ok {
		return b
	}
	return false
}

// docInt accepts the numeric shapes a JSON round-trip can produce.
// Anything else counts as zero.
func docInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func docTime(doc map[string]any, key string) time.Time {
	if t, ok := doc[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}

func docStrings(doc map[string]any, key string) []string {
	switch v := doc[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
