// Package learning implements review sessions over the cached notes.
// Cards are dealt lowest rating first so the weakest material comes up
// before well-known notes, shuffled within each rating group.
package learning

import (
	"context"
	"math/rand"
	"time"

	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/noteservice"
	"github.com/starford/mnemo/internal/projection"
)

// NoteSource is the slice of the note service a session needs.
type NoteSource interface {
	ListNotes(ctx context.Context, sess noteservice.Session, filterTag string) []models.Note
	RateNote(ctx context.Context, sess noteservice.Session, id string, rating int) (models.Note, error)
}

// Summary describes a finished (or abandoned) session.
type Summary struct {
	Total   int         `json:"total"`
	Rated   int         `json:"rated"`
	Skipped int         `json:"skipped"`
	Ratings map[int]int `json:"ratings"`
}

// Session is a single user's review run. It is not safe for concurrent use.
type Session struct {
	src     NoteSource
	user    noteservice.Session
	cards   []models.Note
	pos     int
	skipped int
	ratings map[int]int
}

// Start deals a new session from the user's cached notes. size caps the
// number of cards; size <= 0 means no cap. A nil rng gets a time-seeded one.
func Start(ctx context.Context, user noteservice.Session, src NoteSource, size int, rng *rand.Rand) *Session {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cards := projection.SessionOrder(src.ListNotes(ctx, user, ""), rng)
	if size > 0 && len(cards) > size {
		cards = cards[:size]
	}
	return &Session{
		src:     src,
		user:    user,
		cards:   cards,
		ratings: make(map[int]int),
	}
}

// Current returns the card under review, or false when the session is done.
func (s *Session) Current() (models.Note, bool) {
	if s.Done() {
		return models.Note{}, false
	}
	return s.cards[s.pos], true
}

// Rate records the rating for the current card and advances. The rating is
// written through the note service, so it persists and syncs like any
// other edit.
func (s *Session) Rate(ctx context.Context, rating int) (models.Note, error) {
	card, ok := s.Current()
	if !ok {
		return models.Note{}, nil
	}
	rated, err := s.src.RateNote(ctx, s.user, card.ID, rating)
	if err != nil {
		return models.Note{}, err
	}
	s.ratings[rated.Rating]++
	s.pos++
	return rated, nil
}

// Skip advances past the current card without rating it.
func (s *Session) Skip() {
	if !s.Done() {
		s.skipped++
		s.pos++
	}
}

// Progress reports cards seen so far and the session size.
func (s *Session) Progress() (seen, total int) {
	return s.pos, len(s.cards)
}

// Done reports whether every card has been seen.
func (s *Session) Done() bool {
	return s.pos >= len(s.cards)
}

// Summary totals the session.
func (s *Session) Summary() Summary {
	rated := 0
	ratings := make(map[int]int, len(s.ratings))
	for r, n := range s.ratings {
		rated += n
		ratings[r] = n
	}
	return Summary{
		Total:   len(s.cards),
		Rated:   rated,
		Skipped: s.skipped,
		Ratings: ratings,
	}
}
