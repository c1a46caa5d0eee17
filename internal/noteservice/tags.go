package noteservice

import (
	"context"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/localid"
	"github.com/starford/mnemo/internal/models"
)

const maxTagNameLen = 20

// TagInput is the caller-supplied part of a tag.
type TagInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Validate rejects empty names and names over the length cap.
func (in TagInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, maxTagNameLen)),
	)
	if err != nil {
		return apperr.Validationf("tag: %v", err)
	}
	return nil
}

// Tags returns the user's tags sorted by name, served from the in-process
// tag cache when warm.
func (s *Service) Tags(_ context.Context, sess Session) []models.Tag {
	s.mu.Lock()
	cached, ok := s.tagCache[sess.UserID]
	s.mu.Unlock()
	if !ok {
		s.refreshTagCache(sess)
		s.mu.Lock()
		cached = s.tagCache[sess.UserID]
		s.mu.Unlock()
	}
	tags := make([]models.Tag, 0, len(cached))
	for _, t := range cached {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}

// CreateTag writes the tag locally and kicks off the remote create. Names
// are unique per user, compared case-insensitively.
func (s *Service) CreateTag(_ context.Context, sess Session, in TagInput) (models.Tag, error) {
	if err := in.Validate(); err != nil {
		return models.Tag{}, err
	}
	tag := models.Tag{
		ID:        localid.New(),
		Name:      strings.TrimSpace(in.Name),
		Color:     in.Color,
		CreatedAt: time.Now().UTC(),
		IsLocal:   true,
		UserID:    sess.UserID,
	}
	if tag.Name == "" {
		return models.Tag{}, apperr.Validationf("tag: name: cannot be blank")
	}

	lock := s.userLock(sess.UserID)
	lock.Lock()
	existing := s.store.GetAll(sess.UserID, models.KindTags)
	for _, doc := range existing {
		name, _ := doc["name"].(string)
		if strings.EqualFold(name, tag.Name) {
			lock.Unlock()
			return models.Tag{}, apperr.Validationf("tag %q already exists", tag.Name)
		}
	}
	if err := s.store.Put(sess.UserID, models.KindTags, tag.ID, tag.Document()); err != nil {
		lock.Unlock()
		return models.Tag{}, err
	}
	// A tag created after its name is already in use on notes starts with
	// the real count, not zero.
	s.recomputeTagUsage(sess)
	lock.Unlock()

	s.emit(Event{UserID: sess.UserID, Kind: "tag", Op: "created", ID: tag.ID})
	s.async(func() { s.remoteCreate(sess, models.KindTags, tag.ID, tag.Document()) })
	return tag, nil
}

// DeleteTag removes the tag record. Notes keep the tag name in their
// tagsArray; a later tag with the same name adopts them.
func (s *Service) DeleteTag(_ context.Context, sess Session, id string) error {
	lock := s.userLock(sess.UserID)
	lock.Lock()
	if err := s.store.Delete(sess.UserID, models.KindTags, id); err != nil {
		lock.Unlock()
		return err
	}
	s.refreshTagCache(sess)
	lock.Unlock()

	s.emit(Event{UserID: sess.UserID, Kind: "tag", Op: "deleted", ID: id})
	s.async(func() { s.remoteDelete(sess, models.KindTags, id) })
	return nil
}

// refreshTagCache rebuilds the per-user in-process tag mapping from the
// cache store.
func (s *Service) refreshTagCache(sess Session) {
	docs := s.store.GetAll(sess.UserID, models.KindTags)
	mapping := make(map[string]models.Tag, len(docs))
	for id, doc := range docs {
		mapping[id] = models.TagFromDocument(doc)
	}
	s.mu.Lock()
	s.tagCache[sess.UserID] = mapping
	s.mu.Unlock()
}
