package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/logging"
	"github.com/framecut/framecut-backend/internal/timeline"
	"github.com/framecut/framecut-backend/internal/upload"
)

const probeTimeout = 30 * time.Second

func createMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.NewMediaAsset
		if !decodeJSON(w, r, &req) {
			return
		}
		asset, err := cfg.Timeline.CreateMediaAsset(r.Context(), req)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, asset)
	}
}

func listProjectMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := cfg.Timeline.ListMediaAssets(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(assets))
	}
}

func getMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := cfg.Timeline.GetMediaAsset(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, asset)
	}
}

// deleteMediaHandler removes the row first; a stored upload behind it is
// removed afterwards on a best-effort basis.
func deleteMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		asset, err := cfg.Timeline.GetMediaAsset(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		if err := cfg.Timeline.DeleteMediaAsset(ctx, asset.ID); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		if cfg.Uploads != nil && cfg.Uploads.Owns(asset.SourceURI) {
			if err := cfg.Uploads.Delete(ctx, asset.SourceURI); err != nil {
				cfg.Logger.Warn("failed to delete upload", "media_id", asset.ID, "error", err)
			}
		}
		deletedResponse(w)
	}
}

// uploadMediaHandler streams the multipart "file" part into the upload store
// and records a MediaAsset pointing at it. kind comes from ?kind= or is
// inferred from the part's content type.
func uploadMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID := chi.URLParam(r, "id")
		if cfg.Uploads == nil {
			writeAppError(w, r, cfg.Logger, apperr.Precondition("uploads are not configured"))
			return
		}
		if _, err := cfg.Timeline.GetProject(ctx, projectID); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}

		mr, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "multipart/form-data body is required", CodeValidation)
			return
		}
		var part *multipart.Part
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				WriteError(w, http.StatusBadRequest, "malformed multipart body", CodeValidation)
				return
			}
			if p.FormName() == "file" {
				part = p
				defer p.Close()
				break
			}
			p.Close()
		}
		if part == nil {
			WriteError(w, http.StatusBadRequest, "file part is required", CodeValidation)
			return
		}

		filename := part.FileName()
		if filename == "" {
			filename = "upload.bin"
		}
		contentType := partContentType(part, filename)

		kind := r.URL.Query().Get("kind")
		if kind == "" {
			kind = kindFromContentType(contentType)
		}
		if kind == "" {
			WriteError(w, http.StatusBadRequest, "kind is required for this file type", CodeValidation)
			return
		}

		obj, err := cfg.Uploads.Put(ctx, upload.Key(projectID, filename), part, -1, contentType)
		if err != nil {
			cfg.Logger.Error("upload failed", "project_id", projectID, "error", err)
			WriteError(w, http.StatusInternalServerError, "upload failed", CodeStorage)
			return
		}

		in := timeline.NewMediaAsset{
			ProjectID:        projectID,
			Kind:             kind,
			SourceURI:        obj.URI,
			OriginalFilename: &filename,
			SizeBytes:        &obj.Size,
			Metadata: map[string]any{
				"uploaded":    true,
				"storage_key": obj.Key,
			},
		}
		if obj.ContentType != "" {
			in.MimeType = &obj.ContentType
		}
		probeInto(ctx, cfg, obj.URI, &in)

		asset, err := cfg.Timeline.CreateMediaAsset(ctx, in)
		if err != nil {
			if delErr := cfg.Uploads.Delete(context.WithoutCancel(ctx), obj.URI); delErr != nil {
				cfg.Logger.Warn("failed to remove orphaned upload", "uri", obj.URI, "error", delErr)
			}
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		logging.WithProjectID(cfg.Logger, projectID).Info("media uploaded",
			"media_id", asset.ID,
			"filename", logging.SanitizePath(filename),
		)
		WriteJSON(w, http.StatusCreated, asset)
	}
}

// probeInto enriches in with ffprobe results when a prober is configured and
// the store can expose the object to it. Failures only cost the metadata.
func probeInto(ctx context.Context, cfg ServerConfig, uri string, in *timeline.NewMediaAsset) {
	if cfg.Prober == nil {
		return
	}
	locator, ok := cfg.Uploads.(upload.Locator)
	if !ok {
		return
	}
	target, err := locator.Locate(ctx, uri)
	if err != nil {
		cfg.Logger.Warn("cannot locate upload for probing", "uri", uri, "error", err)
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	res, err := cfg.Prober.Probe(probeCtx, target)
	if err != nil {
		cfg.Logger.Warn("probe failed", "uri", uri, "error", err)
		return
	}

	in.DurationMS = res.DurationMS
	in.Width = res.Width
	in.Height = res.Height
	in.FPS = res.FPS
	in.HasAudio = res.HasAudio
	for k, v := range map[string]string{
		"format":      res.FormatName,
		"video_codec": res.VideoCodec,
		"audio_codec": res.AudioCodec,
	} {
		if v != "" {
			in.Metadata[k] = v
		}
	}
	if res.Bitrate > 0 {
		in.Metadata["bitrate"] = res.Bitrate
	}
}

// mediaFileHandler streams an uploaded asset with Range support. Assets that
// point at external URIs have nothing to serve.
func mediaFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		asset, err := cfg.Timeline.GetMediaAsset(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		if cfg.Uploads == nil || !cfg.Uploads.Owns(asset.SourceURI) {
			writeAppError(w, r, cfg.Logger, apperr.Precondition("media asset has no stored upload"))
			return
		}
		body, obj, err := cfg.Uploads.Open(ctx, asset.SourceURI)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		defer body.Close()

		contentType := obj.ContentType
		if asset.MimeType != nil && *asset.MimeType != "" {
			contentType = *asset.MimeType
		}
		name := path.Base(obj.Key)
		if asset.OriginalFilename != nil && *asset.OriginalFilename != "" {
			name = *asset.OriginalFilename
		}
		if err := cfg.Playback.Serve(w, r, name, obj.Size, contentType, body); err != nil {
			writeAppError(w, r, cfg.Logger, err)
		}
	}
}

func partContentType(part *multipart.Part, filename string) string {
	ct := part.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(filename)); byExt != "" {
			return byExt
		}
	}
	return ct
}

func kindFromContentType(contentType string) string {
	major, _, _ := strings.Cut(contentType, "/")
	switch major {
	case "video", "audio", "image":
		return major
	}
	return ""
}
