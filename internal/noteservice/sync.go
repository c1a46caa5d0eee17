package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/mnemo/internal/cache"
	"github.com/starford/mnemo/internal/localid"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/projection"
)

// Load returns the user's notes and tags. A warm cache is authoritative and
// served as-is, even when the remote is reachable; an empty cache triggers
// a full pull. This is the app-start path.
func (s *Service) Load(ctx context.Context, sess Session) ([]models.Note, []models.Tag, error) {
	lock := s.userLock(sess.UserID)
	lock.Lock()
	defer lock.Unlock()

	noteDocs := s.store.GetAll(sess.UserID, models.KindNotes)
	tagDocs := s.store.GetAll(sess.UserID, models.KindTags)
	if len(noteDocs) > 0 || len(tagDocs) > 0 {
		return projection.Project(projection.NotesList(noteDocs), ""), projection.TagsList(tagDocs), nil
	}

	notes, tags, err := s.gateway.PullAll(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("noteservice: initial pull: %w", err)
	}
	if err := s.repopulateLocked(sess, notes, tags); err != nil {
		return nil, nil, err
	}
	noteDocs = s.store.GetAll(sess.UserID, models.KindNotes)
	tagDocs = s.store.GetAll(sess.UserID, models.KindTags)
	return projection.Project(projection.NotesList(noteDocs), ""), projection.TagsList(tagDocs), nil
}

// SyncNow is the manual "refresh" action: replay queued offline writes,
// drop the whole local partition and rebuild it from the remote. The pull
// happens before the clear so an unreachable remote leaves the cache
// intact. The user lock is held from the queue snapshot until the queue is
// restored: a mutation racing the sync either lands before the snapshot
// (and is replayed) or blocks until the rebuilt queue is back, so no
// queued write can fall into the cleared partition.
func (s *Service) SyncNow(ctx context.Context, sess Session) error {
	s.wg.Wait()

	lock := s.userLock(sess.UserID)
	lock.Lock()

	deferred := s.replayPending(ctx, sess)
	// Persist the post-replay queue before pulling, so an aborted sync
	// cannot replay an already-delivered change twice.
	if err := s.store.SetPending(sess.UserID, deferred); err != nil {
		s.logger.Warn("persisting pending queue failed", slog.String("error", err.Error()))
	}

	notes, tags, err := s.gateway.PullAll(ctx, sess.UserID)
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("noteservice: sync pull: %w", err)
	}

	if err := s.store.Clear(sess.UserID); err != nil {
		lock.Unlock()
		return fmt.Errorf("noteservice: sync clear: %w", err)
	}
	if err := s.repopulateLocked(sess, notes, tags); err != nil {
		lock.Unlock()
		return err
	}
	if len(deferred) > 0 {
		if err := s.store.SetPending(sess.UserID, deferred); err != nil {
			s.logger.Warn("restoring pending queue failed", slog.String("error", err.Error()))
		}
	}
	lock.Unlock()

	s.emit(Event{UserID: sess.UserID, Kind: "sync", Op: "completed"})
	return nil
}

// LastSync reports when the user's partition was last rebuilt from remote.
func (s *Service) LastSync(sess Session) (time.Time, bool) {
	return s.store.LastSync(sess.UserID)
}

// replayPending pushes queued offline writes to the remote, best effort.
// Changes that fail again are returned so the caller can requeue them after
// the partition rebuild.
func (s *Service) replayPending(ctx context.Context, sess Session) []cache.Change {
	pending := s.store.PendingChanges(sess.UserID)
	if len(pending) == 0 {
		return nil
	}
	var deferred []cache.Change
	for _, change := range pending {
		var err error
		switch change.Op {
		case cache.OpCreate:
			_, err = s.gateway.Create(ctx, sess.UserID, change.Kind, change.Data)
		case cache.OpUpdate:
			err = s.gateway.Update(ctx, sess.UserID, change.Kind, change.EntityID, change.Data)
		case cache.OpDelete:
			if !localid.Is(change.EntityID) {
				err = s.gateway.Delete(ctx, sess.UserID, change.Kind, change.EntityID)
			}
		default:
			s.logger.Warn("dropping unknown queued op", slog.String("op", change.Op))
			continue
		}
		if err != nil {
			s.logger.Warn("replay failed",
				slog.String("op", change.Op), slog.String("kind", change.Kind),
				slog.String("id", change.EntityID), slog.String("error", err.Error()))
			deferred = append(deferred, change)
		}
	}
	return deferred
}

func (s *Service) repopulateLocked(sess Session, notes, tags map[string]map[string]any) error {
	if err := s.store.PutAll(sess.UserID, models.KindNotes, notes); err != nil {
		return fmt.Errorf("noteservice: store notes: %w", err)
	}
	if err := s.store.PutAll(sess.UserID, models.KindTags, tags); err != nil {
		return fmt.Errorf("noteservice: store tags: %w", err)
	}
	s.recomputeTagUsage(sess)
	if err := s.store.SetLastSync(sess.UserID, time.Now().UTC()); err != nil {
		s.logger.Warn("stamping last sync failed", slog.String("error", err.Error()))
	}
	return nil
}

// Settings fetches the user's settings document, substituting defaults
// when the remote has none yet.
func (s *Service) Settings(ctx context.Context, sess Session) (models.Settings, error) {
	settings, err := s.gateway.Settings(ctx, sess.UserID)
	if err != nil {
		return models.Settings{CardsPerSession: models.DefaultCardsPerSession}, nil
	}
	if settings.CardsPerSession <= 0 {
		settings.CardsPerSession = models.DefaultCardsPerSession
	}
	return settings, nil
}

// SaveSettings pushes the settings document to the remote.
func (s *Service) SaveSettings(ctx context.Context, sess Session, settings models.Settings) error {
	settings.UpdatedAt = time.Now().UTC()
	if err := s.gateway.SaveSettings(ctx, sess.UserID, settings); err != nil {
		return fmt.Errorf("noteservice: save settings: %w", err)
	}
	return nil
}
