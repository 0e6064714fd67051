package timeline

import (
	"context"
	"database/sql"
	"errors"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/db"
)

const trackColumns = `id, project_id, track_type, name, sort_order, muted, locked, created_at, updated_at`

func (s *Store) CreateTrack(ctx context.Context, in NewTrack) (*Track, error) {
	now := s.clock.Now()
	t := &Track{
		ID:        NewID(),
		ProjectID: in.ProjectID,
		TrackType: in.TrackType,
		Name:      in.Name,
		SortOrder: in.SortOrder,
		Muted:     in.Muted,
		Locked:    in.Locked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateTrack(t); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireExists(ctx, tx, "projects", "project", t.ProjectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO timeline_tracks (`+trackColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.ProjectID, t.TrackType, t.Name, t.SortOrder, db.BoolToInt(t.Muted), db.BoolToInt(t.Locked),
			db.FormatTime(t.CreatedAt), db.FormatTime(t.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	return getTrack(ctx, s.db.Conn(), id)
}

func getTrack(ctx context.Context, q db.Querier, id string) (*Track, error) {
	row := q.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM timeline_tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("track", id)
	}
	if err != nil {
		return nil, apperr.Storage("get track", err)
	}
	return t, nil
}

func scanTrack(row rowScanner) (*Track, error) {
	var t Track
	var muted, locked int
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.ProjectID, &t.TrackType, &t.Name, &t.SortOrder, &muted, &locked, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Muted = muted == 1
	t.Locked = locked == 1
	t.CreatedAt = db.ParseTime(createdAt)
	t.UpdatedAt = db.ParseTime(updatedAt)
	return &t, nil
}

// ListTracks returns tracks in display order: sort_order, then creation.
func (s *Store) ListTracks(ctx context.Context, projectID string) ([]*Track, error) {
	q := s.db.Conn()
	if err := requireExists(ctx, q, "projects", "project", projectID); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+trackColumns+` FROM timeline_tracks
		WHERE project_id = ?
		ORDER BY sort_order ASC, created_at ASC, rowid ASC
	`, projectID)
	if err != nil {
		return nil, apperr.Storage("list tracks", err)
	}
	defer rows.Close()

	tracks := []*Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, apperr.Storage("scan track", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, apperr.Storage("list tracks", rows.Err())
}

func (s *Store) UpdateTrack(ctx context.Context, id string, patch TrackPatch) (*Track, error) {
	var out *Track
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := getTrack(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyRequired(&t.Name, patch.Name, "name"); err != nil {
			return err
		}
		if err := applyRequired(&t.SortOrder, patch.SortOrder, "sort_order"); err != nil {
			return err
		}
		if err := applyRequired(&t.Muted, patch.Muted, "muted"); err != nil {
			return err
		}
		if err := applyRequired(&t.Locked, patch.Locked, "locked"); err != nil {
			return err
		}
		if err := validateTrack(t); err != nil {
			return err
		}
		t.UpdatedAt = s.clock.Now()

		_, err = tx.ExecContext(ctx, `
			UPDATE timeline_tracks SET name = ?, sort_order = ?, muted = ?, locked = ?, updated_at = ?
			WHERE id = ?
		`, t.Name, t.SortOrder, db.BoolToInt(t.Muted), db.BoolToInt(t.Locked), db.FormatTime(t.UpdatedAt), t.ID)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTrack removes the track with its clips, their trims and transitions.
func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "timeline_tracks", "track", id)
}

func requireUnlocked(t *Track) error {
	if t.Locked {
		return apperr.Precondition("track %s is locked", t.ID)
	}
	return nil
}
