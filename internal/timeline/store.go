package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/clock"
	"github.com/framecut/framecut-backend/internal/db"
)

// Store is the transactional timeline store. Every mutation runs in a single
// transaction and either applies completely or not at all.
type Store struct {
	db     *db.DB
	clock  clock.Clock
	logger *slog.Logger
}

func NewStore(database *db.DB, clk clock.Clock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: database, clock: clk, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const projectColumns = `id, name, description, width, height, fps, duration_ms, created_at, updated_at`

func (s *Store) CreateProject(ctx context.Context, in NewProject) (*Project, error) {
	now := s.clock.Now()
	p := &Project{
		ID:          NewID(),
		Name:        in.Name,
		Description: in.Description,
		Width:       intOr(in.Width, DefaultWidth),
		Height:      intOr(in.Height, DefaultHeight),
		FPS:         floatOr(in.FPS, DefaultFPS),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateProject(p); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (`+projectColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, deref(p.Description), p.Width, p.Height, p.FPS, p.DurationMS,
			db.FormatTime(p.CreatedAt), db.FormatTime(p.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", p.ID)
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return getProject(ctx, s.db.Conn(), id)
}

func getProject(ctx context.Context, q db.Querier, id string) (*Project, error) {
	row := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project", id)
	}
	if err != nil {
		return nil, apperr.Storage("get project", err)
	}
	return p, nil
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var description sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &description, &p.Width, &p.Height, &p.FPS, &p.DurationMS, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	p.CreatedAt = db.ParseTime(createdAt)
	p.UpdatedAt = db.ParseTime(updatedAt)
	return &p, nil
}

// ListProjects returns projects most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, apperr.Storage("list projects", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperr.Storage("scan project", err)
		}
		projects = append(projects, p)
	}
	return projects, apperr.Storage("list projects", rows.Err())
}

func (s *Store) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*Project, error) {
	var out *Project
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := getProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyProjectPatch(p, patch); err != nil {
			return err
		}
		if err := validateProject(p); err != nil {
			return err
		}
		p.UpdatedAt = s.clock.Now()

		_, err = tx.ExecContext(ctx, `
			UPDATE projects SET name = ?, description = ?, width = ?, height = ?, fps = ?,
				duration_ms = ?, updated_at = ?
			WHERE id = ?
		`, p.Name, deref(p.Description), p.Width, p.Height, p.FPS, p.DurationMS, db.FormatTime(p.UpdatedAt), p.ID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyProjectPatch(p *Project, patch ProjectPatch) error {
	if err := applyRequired(&p.Name, patch.Name, "name"); err != nil {
		return err
	}
	applyNullable(&p.Description, patch.Description)
	if err := applyRequired(&p.Width, patch.Width, "width"); err != nil {
		return err
	}
	if err := applyRequired(&p.Height, patch.Height, "height"); err != nil {
		return err
	}
	if err := applyRequired(&p.FPS, patch.FPS, "fps"); err != nil {
		return err
	}
	return applyRequired(&p.DurationMS, patch.DurationMS, "duration_ms")
}

// DeleteProject removes the project and, through cascades, everything it owns.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "projects", "project", id)
}

// extendProjectDuration grows duration_ms to cover endMS. It never shrinks.
func (s *Store) extendProjectDuration(ctx context.Context, tx *sql.Tx, projectID string, endMS int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projects SET duration_ms = ?, updated_at = ?
		WHERE id = ? AND duration_ms < ?
	`, endMS, db.FormatTime(s.clock.Now()), projectID, endMS)
	return err
}

const mediaColumns = `id, project_id, kind, source_uri, original_filename, mime_type, size_bytes,
	duration_ms, width, height, fps, has_audio, metadata, created_at`

func (s *Store) CreateMediaAsset(ctx context.Context, in NewMediaAsset) (*MediaAsset, error) {
	m := &MediaAsset{
		ID:               NewID(),
		ProjectID:        in.ProjectID,
		Kind:             in.Kind,
		SourceURI:        in.SourceURI,
		OriginalFilename: in.OriginalFilename,
		MimeType:         in.MimeType,
		SizeBytes:        in.SizeBytes,
		DurationMS:       in.DurationMS,
		Width:            in.Width,
		Height:           in.Height,
		FPS:              in.FPS,
		HasAudio:         in.HasAudio,
		Metadata:         objectOr(in.Metadata),
		CreatedAt:        s.clock.Now(),
	}
	if err := validateMediaAsset(m); err != nil {
		return nil, err
	}
	metadata, err := encodeObject(m.Metadata, "metadata")
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireExists(ctx, tx, "projects", "project", m.ProjectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO media_assets (`+mediaColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.ProjectID, m.Kind, m.SourceURI, deref(m.OriginalFilename), deref(m.MimeType), deref(m.SizeBytes),
			deref(m.DurationMS), deref(m.Width), deref(m.Height), deref(m.FPS), db.BoolToInt(m.HasAudio), metadata, db.FormatTime(m.CreatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("media asset created", "media_id", m.ID, "project_id", m.ProjectID, "kind", m.Kind)
	return m, nil
}

func (s *Store) GetMediaAsset(ctx context.Context, id string) (*MediaAsset, error) {
	return getMediaAsset(ctx, s.db.Conn(), id)
}

func getMediaAsset(ctx context.Context, q db.Querier, id string) (*MediaAsset, error) {
	row := q.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_assets WHERE id = ?`, id)
	m, err := scanMediaAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("media asset", id)
	}
	if err != nil {
		return nil, apperr.Storage("get media asset", err)
	}
	return m, nil
}

func scanMediaAsset(row rowScanner) (*MediaAsset, error) {
	var m MediaAsset
	var filename, mimeType sql.NullString
	var size, duration sql.NullInt64
	var width, height sql.NullInt32
	var fps sql.NullFloat64
	var hasAudio int
	var metadata, createdAt string

	err := row.Scan(&m.ID, &m.ProjectID, &m.Kind, &m.SourceURI, &filename, &mimeType, &size,
		&duration, &width, &height, &fps, &hasAudio, &metadata, &createdAt)
	if err != nil {
		return nil, err
	}
	m.OriginalFilename = stringPtr(filename)
	m.MimeType = stringPtr(mimeType)
	m.SizeBytes = int64Ptr(size)
	m.DurationMS = int64Ptr(duration)
	m.Width = intPtr(width)
	m.Height = intPtr(height)
	if fps.Valid {
		m.FPS = &fps.Float64
	}
	m.HasAudio = hasAudio == 1
	m.Metadata = decodeObject(metadata)
	m.CreatedAt = db.ParseTime(createdAt)
	return &m, nil
}

// ListMediaAssets returns a project's media newest first.
func (s *Store) ListMediaAssets(ctx context.Context, projectID string) ([]*MediaAsset, error) {
	if err := requireExists(ctx, s.db.Conn(), "projects", "project", projectID); err != nil {
		return nil, err
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media_assets
		WHERE project_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, projectID)
	if err != nil {
		return nil, apperr.Storage("list media assets", err)
	}
	defer rows.Close()

	assets := []*MediaAsset{}
	for rows.Next() {
		m, err := scanMediaAsset(rows)
		if err != nil {
			return nil, apperr.Storage("scan media asset", err)
		}
		assets = append(assets, m)
	}
	return assets, apperr.Storage("list media assets", rows.Err())
}

// DeleteMediaAsset removes the asset. Clips that referenced it keep their
// placement with media_asset_id cleared.
func (s *Store) DeleteMediaAsset(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "media_assets", "media asset", id)
}

func (s *Store) deleteByID(ctx context.Context, table, entity, id string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound(entity, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(entity+" deleted", "id", id)
	return nil
}

// requireExists reports NotFound when no row in table has the id. table is
// always a package constant.
func requireExists(ctx context.Context, q db.Querier, table, entity, id string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	if err != nil {
		return apperr.Storage("lookup "+entity, err)
	}
	return nil
}

func encodeObject(m map[string]any, field string) (string, error) {
	b, err := json.Marshal(objectOr(m))
	if err != nil {
		return "", apperr.Validation("%s is not valid JSON: %v", field, err)
	}
	return string(b), nil
}

func decodeObject(s string) map[string]any {
	out := map[string]any{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{"_raw": s}
	}
	return out
}

// deref turns an optional field into a driver value, nil meaning NULL.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func intPtr(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}

func mustBeOnProject(entity, id, projectID, want string) error {
	if projectID != want {
		return apperr.Validation("%s %s belongs to project %s, not %s", entity, id, projectID, want)
	}
	return nil
}
