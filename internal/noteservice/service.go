// Package noteservice orchestrates every user-facing mutation.
//
// Each mutation follows the same state machine: validate, write the local
// cache (synchronous, the caller sees the result immediately, fully offline
// capable), then attempt the matching remote write in the background. A
// failed remote write never blocks or surfaces to the caller; it is logged
// and queued for replay on the next manual synchronization. Derived state
// (tag usage counts) is recomputed after note mutations.
package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/cache"
	"github.com/starford/mnemo/internal/localid"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/projection"
	"github.com/starford/mnemo/internal/remote"
)

// Session identifies the acting user. It is passed explicitly to every
// operation; the service holds no notion of a current user.
type Session struct {
	UserID string
}

// Event describes a completed local mutation, for UI push channels.
type Event struct {
	UserID string
	Kind   string // "note", "tag" or "sync"
	Op     string // "created", "updated", "deleted" or "completed"
	ID     string
}

// Option configures a Service.
type Option func(*Service)

// WithChangeListener registers a callback invoked after every local
// mutation. The callback runs outside the user's serialization lock.
func WithChangeListener(fn func(Event)) Option {
	return func(s *Service) { s.onChange = fn }
}

// Service coordinates the local cache and the remote gateway.
type Service struct {
	store    *cache.Store
	gateway  remote.Gateway
	logger   *slog.Logger
	onChange func(Event)

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	tagCache map[string]map[string]models.Tag

	wg sync.WaitGroup
}

// NewService creates a new mutation orchestrator.
func NewService(store *cache.Store, gateway remote.Gateway, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		gateway:  gateway,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
		tagCache: make(map[string]map[string]models.Tag),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until every in-flight background remote write has finished.
// Used by shutdown and tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// userLock returns the per-user serialization lock. Every local-write and
// every full pull for one user goes through this lock, so a pull can never
// overwrite a concurrent mutation's just-written record.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Service) emit(e Event) {
	if s.onChange != nil {
		s.onChange(e)
	}
}

// async runs fn on a tracked goroutine.
func (s *Service) async(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// NoteInput is the caller-supplied part of a note. CreatedAt, when set,
// is kept instead of the current time; imports use it to carry original
// creation dates across.
type NoteInput struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Subbody   string    `json:"subbody"`
	Notes     string    `json:"notes"`
	Rating    int       `json:"rating"`
	Tags      []string  `json:"tagsArray"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate rejects input that must never reach local-write. Ratings are not
// validated here: out-of-range values are coerced, not refused.
func (in NoteInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
	)
	if err != nil {
		return apperr.Validationf("note: %v", err)
	}
	return nil
}

// ListNotes projects the user's cached notes through the optional tag
// filter, newest first.
func (s *Service) ListNotes(_ context.Context, sess Session, filterTag string) []models.Note {
	docs := s.store.GetAll(sess.UserID, models.KindNotes)
	return projection.Project(projection.NotesList(docs), filterTag)
}

// GetNote returns one cached note.
func (s *Service) GetNote(_ context.Context, sess Session, id string) (models.Note, error) {
	docs := s.store.GetAll(sess.UserID, models.KindNotes)
	doc, ok := docs[id]
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	return models.NoteFromDocument(doc), nil
}

// CreateNote writes the note locally under a local-temporary id and kicks
// off the remote create. The returned note is the locally visible one; its
// id changes to the server-assigned form once the remote write lands.
func (s *Service) CreateNote(_ context.Context, sess Session, in NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, err
	}
	now := time.Now().UTC()
	created := now
	if !in.CreatedAt.IsZero() {
		created = in.CreatedAt
	}
	note := models.Note{
		ID:        localid.New(),
		Title:     in.Title,
		Body:      in.Body,
		Subbody:   in.Subbody,
		Notes:     in.Notes,
		Rating:    models.ClampRating(in.Rating),
		Tags:      nonNilStrings(in.Tags),
		CreatedAt: created,
		UpdatedAt: now,
		IsLocal:   true,
		UserID:    sess.UserID,
	}

	lock := s.userLock(sess.UserID)
	lock.Lock()
	if err := s.store.Put(sess.UserID, models.KindNotes, note.ID, note.Document()); err != nil {
		lock.Unlock()
		return models.Note{}, err
	}
	s.recomputeTagUsage(sess)
	lock.Unlock()

	s.emit(Event{UserID: sess.UserID, Kind: "note", Op: "created", ID: note.ID})
	s.async(func() { s.remoteCreate(sess, models.KindNotes, note.ID, note.Document()) })
	return note, nil
}

// UpdateNote overwrites the caller-editable fields of an existing note.
func (s *Service) UpdateNote(_ context.Context, sess Session, id string, in NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, err
	}
	return s.mutateNote(sess, id, func(doc map[string]any) {
		doc["title"] = in.Title
		doc["body"] = in.Body
		doc["subbody"] = in.Subbody
		doc["notes"] = in.Notes
		doc["rating"] = models.ClampRating(in.Rating)
		doc["tagsArray"] = nonNilStrings(in.Tags)
	})
}

// RateNote records a learning-session rating for a note.
func (s *Service) RateNote(_ context.Context, sess Session, id string, rating int) (models.Note, error) {
	return s.mutateNote(sess, id, func(doc map[string]any) {
		doc["rating"] = models.ClampRating(rating)
	})
}

// mutateNote applies an in-place edit to a cached note, stamps updatedAt,
// refreshes tag usage, and schedules the remote update.
func (s *Service) mutateNote(sess Session, id string, apply func(map[string]any)) (models.Note, error) {
	lock := s.userLock(sess.UserID)
	lock.Lock()
	docs := s.store.GetAll(sess.UserID, models.KindNotes)
	doc, ok := docs[id]
	if !ok {
		lock.Unlock()
		return models.Note{}, apperr.ErrNotFound
	}
	apply(doc)
	doc["updatedAt"] = time.Now().UTC()
	if err := s.store.Put(sess.UserID, models.KindNotes, id, doc); err != nil {
		lock.Unlock()
		return models.Note{}, err
	}
	s.recomputeTagUsage(sess)
	note := models.NoteFromDocument(doc)
	lock.Unlock()

	s.emit(Event{UserID: sess.UserID, Kind: "note", Op: "updated", ID: id})
	s.async(func() { s.remoteUpdate(sess, models.KindNotes, id, note.Document()) })
	return note, nil
}

// DeleteNote removes the note from the cache immediately and
// unconditionally, then attempts the remote delete. No tombstone is kept.
func (s *Service) DeleteNote(_ context.Context, sess Session, id string) error {
	lock := s.userLock(sess.UserID)
	lock.Lock()
	if err := s.store.Delete(sess.UserID, models.KindNotes, id); err != nil {
		lock.Unlock()
		return err
	}
	s.recomputeTagUsage(sess)
	lock.Unlock()

	s.emit(Event{UserID: sess.UserID, Kind: "note", Op: "deleted", ID: id})
	s.async(func() { s.remoteDelete(sess, models.KindNotes, id) })
	return nil
}

// remoteCreate is the background half of a create mutation: on success the
// local-temporary id is promoted to the server-assigned one; on failure the
// operation is queued for replay and the record stays local.
func (s *Service) remoteCreate(sess Session, kind, id string, doc map[string]any) {
	remoteID, err := s.gateway.Create(context.Background(), sess.UserID, kind, doc)
	if err != nil {
		s.deferChange(sess, cache.Change{Op: cache.OpCreate, Kind: kind, EntityID: id, Data: doc}, err)
		return
	}
	lock := s.userLock(sess.UserID)
	lock.Lock()
	perr := s.store.Promote(sess.UserID, kind, id, remoteID)
	if perr == nil && kind == models.KindTags {
		s.refreshTagCache(sess)
	}
	lock.Unlock()
	if perr != nil {
		s.logger.Warn("promote failed", slog.String("kind", kind),
			slog.String("local_id", id), slog.String("error", perr.Error()))
		return
	}
	s.emit(Event{UserID: sess.UserID, Kind: eventKind(kind), Op: "updated", ID: remoteID})
	s.updateCounters(sess)
}

func (s *Service) remoteUpdate(sess Session, kind, id string, doc map[string]any) {
	if err := s.gateway.Update(context.Background(), sess.UserID, kind, id, doc); err != nil {
		s.deferChange(sess, cache.Change{Op: cache.OpUpdate, Kind: kind, EntityID: id, Data: doc}, err)
		return
	}
	// An update against a still-local id has reached the document the
	// record maps to; finish the promotion locally.
	if localid.Is(id) {
		lock := s.userLock(sess.UserID)
		lock.Lock()
		if err := s.store.Promote(sess.UserID, kind, id, localid.Strip(id)); err != nil {
			s.logger.Warn("promote after update failed", slog.String("error", err.Error()))
		} else if kind == models.KindTags {
			s.refreshTagCache(sess)
		}
		lock.Unlock()
	}
}

func (s *Service) remoteDelete(sess Session, kind, id string) {
	if err := s.gateway.Delete(context.Background(), sess.UserID, kind, id); err != nil {
		s.deferChange(sess, cache.Change{Op: cache.OpDelete, Kind: kind, EntityID: id}, err)
		return
	}
	s.updateCounters(sess)
}

// deferChange logs a failed remote write and queues it. The local state is
// untouched: the user keeps working offline and the queue is replayed on
// the next manual synchronization.
func (s *Service) deferChange(sess Session, change cache.Change, cause error) {
	s.logger.Warn("remote write failed, queued for replay",
		slog.String("op", change.Op), slog.String("kind", change.Kind),
		slog.String("id", change.EntityID), slog.String("error", cause.Error()))
	change.ID = uuid.NewString()
	change.Timestamp = time.Now().UTC()
	// Appends go through the user lock so a synchronization holding it
	// cannot rebuild the queue while this change is half-written.
	lock := s.userLock(sess.UserID)
	lock.Lock()
	err := s.store.AppendPending(sess.UserID, change)
	lock.Unlock()
	if err != nil {
		s.logger.Error("queueing change failed", slog.String("error", err.Error()))
	}
}

// recomputeTagUsage rescans every cached note and rewrites each tag's
// usageCount (number of notes carrying the tag). Callers hold the user lock.
func (s *Service) recomputeTagUsage(sess Session) {
	notes := projection.NotesList(s.store.GetAll(sess.UserID, models.KindNotes))
	counts := projection.UsageCounts(notes)
	tagDocs := s.store.GetAll(sess.UserID, models.KindTags)
	for id, doc := range tagDocs {
		name, _ := doc["name"].(string)
		doc["usageCount"] = counts[name]
		tagDocs[id] = doc
	}
	if err := s.store.PutAll(sess.UserID, models.KindTags, tagDocs); err != nil {
		s.logger.Warn("persisting tag usage failed", slog.String("error", err.Error()))
		return
	}
	s.refreshTagCache(sess)
}

// updateCounters pushes the user's note/tag totals into the remote
// settings document. Best effort: failures are only logged.
func (s *Service) updateCounters(sess Session) {
	notes := s.store.GetAll(sess.UserID, models.KindNotes)
	tags := s.store.GetAll(sess.UserID, models.KindTags)

	ctx := context.Background()
	settings, err := s.gateway.Settings(ctx, sess.UserID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		settings = models.Settings{CardsPerSession: models.DefaultCardsPerSession}
	case err != nil:
		// A failed read means the current preferences are unknown.
		// Pushing a default document here would clobber them, so the
		// counter refresh waits for the next mutation.
		s.logger.Warn("reading settings for counters failed", slog.String("error", err.Error()))
		return
	}
	settings.TotalNotes = len(notes)
	settings.TotalTags = len(tags)
	settings.UpdatedAt = time.Now().UTC()
	if err := s.gateway.SaveSettings(ctx, sess.UserID, settings); err != nil {
		s.logger.Warn("updating user counters failed", slog.String("error", err.Error()))
	}
}

func eventKind(kind string) string {
	if kind == models.KindTags {
		return "tag"
	}
	return "note"
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
