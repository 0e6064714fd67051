package timeline

import (
	"context"
	"database/sql"
	"errors"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/db"
)

const clipColumns = `id, project_id, track_id, media_asset_id, clip_type, name, start_ms, end_ms,
	in_ms, out_ms, speed, opacity, volume, transform, created_at, updated_at`

func (s *Store) CreateClip(ctx context.Context, in NewClip) (*Clip, error) {
	now := s.clock.Now()
	c := &Clip{
		ID:           NewID(),
		ProjectID:    in.ProjectID,
		TrackID:      in.TrackID,
		MediaAssetID: in.MediaAssetID,
		ClipType:     in.ClipType,
		Name:         in.Name,
		StartMS:      in.StartMS,
		EndMS:        in.EndMS,
		InMS:         in.InMS,
		OutMS:        in.OutMS,
		Speed:        floatOr(in.Speed, 1),
		Opacity:      floatOr(in.Opacity, 1),
		Volume:       floatOr(in.Volume, 1),
		Transform:    objectOr(in.Transform),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateClip(c); err != nil {
		return nil, err
	}
	transform, err := encodeObject(c.Transform, "transform")
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireExists(ctx, tx, "projects", "project", c.ProjectID); err != nil {
			return err
		}
		track, err := getTrack(ctx, tx, c.TrackID)
		if err != nil {
			return err
		}
		if err := mustBeOnProject("track", track.ID, track.ProjectID, c.ProjectID); err != nil {
			return err
		}
		if err := requireUnlocked(track); err != nil {
			return err
		}
		if err := checkClipMedia(ctx, tx, c); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO timeline_clips (`+clipColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.ProjectID, c.TrackID, deref(c.MediaAssetID), c.ClipType, deref(c.Name), c.StartMS, c.EndMS,
			c.InMS, c.OutMS, c.Speed, c.Opacity, c.Volume, transform, db.FormatTime(c.CreatedAt), db.FormatTime(c.UpdatedAt))
		if err != nil {
			return err
		}
		return s.extendProjectDuration(ctx, tx, c.ProjectID, c.EndMS)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func checkClipMedia(ctx context.Context, q db.Querier, c *Clip) error {
	if c.MediaAssetID == nil {
		return nil
	}
	m, err := getMediaAsset(ctx, q, *c.MediaAssetID)
	if err != nil {
		return err
	}
	return mustBeOnProject("media asset", m.ID, m.ProjectID, c.ProjectID)
}

func (s *Store) GetClip(ctx context.Context, id string) (*Clip, error) {
	return getClip(ctx, s.db.Conn(), id)
}

func getClip(ctx context.Context, q db.Querier, id string) (*Clip, error) {
	row := q.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM timeline_clips WHERE id = ?`, id)
	c, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("clip", id)
	}
	if err != nil {
		return nil, apperr.Storage("get clip", err)
	}
	return c, nil
}

func scanClip(row rowScanner) (*Clip, error) {
	var c Clip
	var mediaID, name sql.NullString
	var transform, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.ProjectID, &c.TrackID, &mediaID, &c.ClipType, &name, &c.StartMS, &c.EndMS,
		&c.InMS, &c.OutMS, &c.Speed, &c.Opacity, &c.Volume, &transform, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.MediaAssetID = stringPtr(mediaID)
	c.Name = stringPtr(name)
	c.Transform = decodeObject(transform)
	c.CreatedAt = db.ParseTime(createdAt)
	c.UpdatedAt = db.ParseTime(updatedAt)
	return &c, nil
}

// ListClips returns a project's clips by start_ms, ties broken by creation.
func (s *Store) ListClips(ctx context.Context, projectID string) ([]*Clip, error) {
	q := s.db.Conn()
	if err := requireExists(ctx, q, "projects", "project", projectID); err != nil {
		return nil, err
	}
	return listClips(ctx, q, `project_id = ?`, projectID)
}

// ListTrackClips is ListClips restricted to one track.
func (s *Store) ListTrackClips(ctx context.Context, trackID string) ([]*Clip, error) {
	q := s.db.Conn()
	if err := requireExists(ctx, q, "timeline_tracks", "track", trackID); err != nil {
		return nil, err
	}
	return listClips(ctx, q, `track_id = ?`, trackID)
}

func listClips(ctx context.Context, q db.Querier, where string, arg string) ([]*Clip, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+clipColumns+` FROM timeline_clips
		WHERE `+where+`
		ORDER BY start_ms ASC, created_at ASC, rowid ASC
	`, arg)
	if err != nil {
		return nil, apperr.Storage("list clips", err)
	}
	defer rows.Close()

	clips := []*Clip{}
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, apperr.Storage("scan clip", err)
		}
		clips = append(clips, c)
	}
	return clips, apperr.Storage("list clips", rows.Err())
}

// UpdateClip applies the fields present in patch. Moving a clip to another
// track is refused while it is a transition endpoint.
func (s *Store) UpdateClip(ctx context.Context, id string, patch ClipPatch) (*Clip, error) {
	var out *Clip
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := getClip(ctx, tx, id)
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

		if patch.TrackID.Set {
			if patch.TrackID.Null {
				return errNotNullable("track_id")
			}
			if patch.TrackID.Value != c.TrackID {
				if err := s.checkClipMove(ctx, tx, c, patch.TrackID.Value); err != nil {
					return err
				}
				c.TrackID = patch.TrackID.Value
			}
		}
		if err := applyClipPatch(c, patch); err != nil {
			return err
		}
		if err := validateClip(c); err != nil {
			return err
		}
		if patch.MediaAssetID.HasValue() {
			if err := checkClipMedia(ctx, tx, c); err != nil {
				return err
			}
		}
		transform, err := encodeObject(c.Transform, "transform")
		if err != nil {
			return err
		}
		c.UpdatedAt = s.clock.Now()

		_, err = tx.ExecContext(ctx, `
			UPDATE timeline_clips SET track_id = ?, media_asset_id = ?, name = ?, start_ms = ?, end_ms = ?,
				in_ms = ?, out_ms = ?, speed = ?, opacity = ?, volume = ?, transform = ?, updated_at = ?
			WHERE id = ?
		`, c.TrackID, deref(c.MediaAssetID), deref(c.Name), c.StartMS, c.EndMS,
			c.InMS, c.OutMS, c.Speed, c.Opacity, c.Volume, transform, db.FormatTime(c.UpdatedAt), c.ID)
		if err != nil {
			return err
		}
		out = c
		return s.extendProjectDuration(ctx, tx, c.ProjectID, c.EndMS)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) checkClipMove(ctx context.Context, tx *sql.Tx, c *Clip, trackID string) error {
	dest, err := getTrack(ctx, tx, trackID)
	if err != nil {
		return err
	}
	if err := mustBeOnProject("track", dest.ID, dest.ProjectID, c.ProjectID); err != nil {
		return err
	}
	if err := requireUnlocked(dest); err != nil {
		return err
	}
	var n int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transitions WHERE from_clip_id = ? OR to_clip_id = ?
	`, c.ID, c.ID).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("clip %s is an endpoint of %d transition(s) and cannot change track", c.ID, n)
	}
	return nil
}

func applyClipPatch(c *Clip, patch ClipPatch) error {
	applyNullable(&c.MediaAssetID, patch.MediaAssetID)
	applyNullable(&c.Name, patch.Name)
	fields := []struct {
		dst   *int64
		opt   Optional[int64]
		field string
	}{
		{&c.StartMS, patch.StartMS, "start_ms"},
		{&c.EndMS, patch.EndMS, "end_ms"},
		{&c.InMS, patch.InMS, "in_ms"},
		{&c.OutMS, patch.OutMS, "out_ms"},
	}
	for _, f := range fields {
		if err := applyRequired(f.dst, f.opt, f.field); err != nil {
			return err
		}
	}
	if err := applyRequired(&c.Speed, patch.Speed, "speed"); err != nil {
		return err
	}
	if err := applyRequired(&c.Opacity, patch.Opacity, "opacity"); err != nil {
		return err
	}
	if err := applyRequired(&c.Volume, patch.Volume, "volume"); err != nil {
		return err
	}
	if err := applyRequired(&c.Transform, patch.Transform, "transform"); err != nil {
		return err
	}
	c.Transform = objectOr(c.Transform)
	return nil
}

// DeleteClip removes the clip; its trims and any transition touching it go too.
func (s *Store) DeleteClip(ctx context.Context, id string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := getClip(ctx, tx, id)
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
		_, err = tx.ExecContext(ctx, "DELETE FROM timeline_clips WHERE id = ?", id)
		return err
	})
}
