package timeline

import (
	"context"
	"database/sql"
	"errors"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/db"
)

const transitionColumns = `id, project_id, track_id, from_clip_id, to_clip_id, transition_type,
	duration_ms, easing, params, created_at, updated_at`

func (s *Store) CreateTransition(ctx context.Context, in NewTransition) (*Transition, error) {
	now := s.clock.Now()
	t := &Transition{
		ID:             NewID(),
		ProjectID:      in.ProjectID,
		TrackID:        in.TrackID,
		FromClipID:     in.FromClipID,
		ToClipID:       in.ToClipID,
		TransitionType: in.TransitionType,
		DurationMS:     DefaultTransitionMS,
		Easing:         in.Easing,
		Params:         objectOr(in.Params),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.TransitionType == "" {
		t.TransitionType = DefaultTransitionType
	}
	if t.Easing == "" {
		t.Easing = DefaultEasing
	}
	if in.DurationMS != nil {
		t.DurationMS = *in.DurationMS
	}
	if err := validateTransition(t); err != nil {
		return nil, err
	}
	params, err := encodeObject(t.Params, "params")
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireExists(ctx, tx, "projects", "project", t.ProjectID); err != nil {
			return err
		}
		track, err := getTrack(ctx, tx, t.TrackID)
		if err != nil {
			return err
		}
		if err := mustBeOnProject("track", track.ID, track.ProjectID, t.ProjectID); err != nil {
			return err
		}
		for _, clipID := range []string{t.FromClipID, t.ToClipID} {
			c, err := getClip(ctx, tx, clipID)
			if err != nil {
				return err
			}
			if c.TrackID != t.TrackID {
				return apperr.Validation("clip %s is not on track %s", c.ID, t.TrackID)
			}
		}

		var existing string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM transitions WHERE from_clip_id = ? AND to_clip_id = ?
		`, t.FromClipID, t.ToClipID).Scan(&existing)
		if err == nil {
			return apperr.Conflict("transition %s already links clip %s to %s", existing, t.FromClipID, t.ToClipID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO transitions (`+transitionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.ProjectID, t.TrackID, t.FromClipID, t.ToClipID, t.TransitionType,
			t.DurationMS, t.Easing, params, db.FormatTime(t.CreatedAt), db.FormatTime(t.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTransition(ctx context.Context, id string) (*Transition, error) {
	return getTransition(ctx, s.db.Conn(), id)
}

func getTransition(ctx context.Context, q db.Querier, id string) (*Transition, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transitionColumns+` FROM transitions WHERE id = ?`, id)
	t, err := scanTransition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("transition", id)
	}
	if err != nil {
		return nil, apperr.Storage("get transition", err)
	}
	return t, nil
}

func scanTransition(row rowScanner) (*Transition, error) {
	var t Transition
	var params, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.ProjectID, &t.TrackID, &t.FromClipID, &t.ToClipID, &t.TransitionType,
		&t.DurationMS, &t.Easing, &params, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Params = decodeObject(params)
	t.CreatedAt = db.ParseTime(createdAt)
	t.UpdatedAt = db.ParseTime(updatedAt)
	return &t, nil
}

// ListTransitions returns a project's transitions oldest first.
func (s *Store) ListTransitions(ctx context.Context, projectID string) ([]*Transition, error) {
	q := s.db.Conn()
	if err := requireExists(ctx, q, "projects", "project", projectID); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+transitionColumns+` FROM transitions
		WHERE project_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, projectID)
	if err != nil {
		return nil, apperr.Storage("list transitions", err)
	}
	defer rows.Close()

	transitions := []*Transition{}
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, apperr.Storage("scan transition", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, apperr.Storage("list transitions", rows.Err())
}

func (s *Store) UpdateTransition(ctx context.Context, id string, patch TransitionPatch) (*Transition, error) {
	var out *Transition
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := getTransition(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyRequired(&t.TransitionType, patch.TransitionType, "transition_type"); err != nil {
			return err
		}
		if err := applyRequired(&t.DurationMS, patch.DurationMS, "duration_ms"); err != nil {
			return err
		}
		if err := applyRequired(&t.Easing, patch.Easing, "easing"); err != nil {
			return err
		}
		if err := applyRequired(&t.Params, patch.Params, "params"); err != nil {
			return err
		}
		if err := validateTransition(t); err != nil {
			return err
		}
		params, err := encodeObject(t.Params, "params")
		if err != nil {
			return err
		}
		t.Params = objectOr(t.Params)
		t.UpdatedAt = s.clock.Now()

		_, err = tx.ExecContext(ctx, `
			UPDATE transitions SET transition_type = ?, duration_ms = ?, easing = ?, params = ?, updated_at = ?
			WHERE id = ?
		`, t.TransitionType, t.DurationMS, t.Easing, params, db.FormatTime(t.UpdatedAt), t.ID)
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

func (s *Store) DeleteTransition(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "transitions", "transition", id)
}
