package timeline

import (
	"context"
	"database/sql"
	"errors"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/db"
)

const trimColumns = `id, clip_id, kind, trim_in_ms, trim_out_ms, created_at`

// CreateTrim appends an edit record to a clip. Trims are never updated.
func (s *Store) CreateTrim(ctx context.Context, in NewTrim) (*Trim, error) {
	t := &Trim{
		ID:        NewID(),
		ClipID:    in.ClipID,
		Kind:      in.Kind,
		TrimInMS:  in.TrimInMS,
		TrimOutMS: in.TrimOutMS,
		CreatedAt: s.clock.Now(),
	}
	if err := validateTrim(t); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := getClip(ctx, tx, t.ClipID)
		if err != nil {
			return err
		}
		track, err := getTrack(ctx, tx, c.TrackID)
		if err != nil {
			return err
		}
		if err := requireUnlocked(track); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO clip_trims (`+trimColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		`, t.ID, t.ClipID, t.Kind, deref(t.TrimInMS), deref(t.TrimOutMS), db.FormatTime(t.CreatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanTrim(row rowScanner) (*Trim, error) {
	var t Trim
	var in, out sql.NullInt64
	var createdAt string
	if err := row.Scan(&t.ID, &t.ClipID, &t.Kind, &in, &out, &createdAt); err != nil {
		return nil, err
	}
	t.TrimInMS = int64Ptr(in)
	t.TrimOutMS = int64Ptr(out)
	t.CreatedAt = db.ParseTime(createdAt)
	return &t, nil
}

// ListTrims returns a clip's trim history oldest first.
func (s *Store) ListTrims(ctx context.Context, clipID string) ([]*Trim, error) {
	q := s.db.Conn()
	if err := requireExists(ctx, q, "timeline_clips", "clip", clipID); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+trimColumns+` FROM clip_trims
		WHERE clip_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, clipID)
	if err != nil {
		return nil, apperr.Storage("list trims", err)
	}
	defer rows.Close()

	trims := []*Trim{}
	for rows.Next() {
		t, err := scanTrim(rows)
		if err != nil {
			return nil, apperr.Storage("scan trim", err)
		}
		trims = append(trims, t)
	}
	return trims, apperr.Storage("list trims", rows.Err())
}

// DeleteTrim removes one edit record. Like creation it is refused while the
// clip's track is locked.
func (s *Store) DeleteTrim(ctx context.Context, id string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+trimColumns+` FROM clip_trims WHERE id = ?`, id)
		t, err := scanTrim(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("trim", id)
		}
		if err != nil {
			return err
		}
		c, err := getClip(ctx, tx, t.ClipID)
		if err != nil {
			return err
		}
		track, err := getTrack(ctx, tx, c.TrackID)
		if err != nil {
			return err
		}
		if err := requireUnlocked(track); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM clip_trims WHERE id = ?", id)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("trim deleted", "id", id)
	return nil
}
