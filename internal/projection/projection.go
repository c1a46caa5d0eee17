// Package projection derives display views from cached collections.
// Everything here is pure: given the same inputs the outputs are
// deterministic (session ordering takes its randomness as a parameter).
package projection

import (
	"math/rand"
	"sort"
	"time"

	"github.com/starford/mnemo/internal/models"
)

// Project returns the notes to display: filtered to those containing
// filterTag (exact match, empty filter keeps everything) and ordered by
// updatedAt descending, falling back to createdAt. Notes with neither
// timestamp sort after all dated notes. No matches yields an empty slice.
func Project(notes []models.Note, filterTag string) []models.Note {
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if filterTag != "" && !contains(n.Tags, filterTag) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, iOK := sortTime(out[i])
		tj, jOK := sortTime(out[j])
		if iOK != jOK {
			return iOK
		}
		if !iOK {
			return false
		}
		return ti.After(tj)
	})
	return out
}

// UsageCounts returns, for each tag name occurring in notes, the number of
// notes that carry it. A note listing the same tag twice still counts once.
func UsageCounts(notes []models.Note) map[string]int {
	counts := make(map[string]int)
	for _, n := range notes {
		seen := make(map[string]struct{}, len(n.Tags))
		for _, name := range n.Tags {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			counts[name]++
		}
	}
	return counts
}

// SessionOrder arranges notes for a learning session: rating groups in
// ascending order (weakest material first), shuffled within each group.
func SessionOrder(notes []models.Note, rng *rand.Rand) []models.Note {
	groups := make(map[int][]models.Note)
	for _, n := range notes {
		r := models.ClampRating(n.Rating)
		groups[r] = append(groups[r], n)
	}
	out := make([]models.Note, 0, len(notes))
	for rating := 0; rating <= 5; rating++ {
		group := groups[rating]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		out = append(out, group...)
	}
	return out
}

// NotesList flattens an id-keyed document mapping into typed notes.
func NotesList(docs map[string]map[string]any) []models.Note {
	out := make([]models.Note, 0, len(docs))
	for _, doc := range docs {
		out = append(out, models.NoteFromDocument(doc))
	}
	return out
}

// TagsList flattens an id-keyed document mapping into tags ordered by name.
func TagsList(docs map[string]map[string]any) []models.Tag {
	out := make([]models.Tag, 0, len(docs))
	for _, doc := range docs {
		out = append(out, models.TagFromDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortTime(n models.Note) (time.Time, bool) {
	if !n.UpdatedAt.IsZero() {
		return n.UpdatedAt, true
	}
	if !n.CreatedAt.IsZero() {
		return n.CreatedAt, true
	}
	return time.Time{}, false
}

func contains(tags []string, name string) bool {
	for _, t := range tags {
		if t == name {
			return true
		}
	}
	return false
}
