package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/migraineai/voicelog/internal/asr"
	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
	"github.com/migraineai/voicelog/internal/voice"
)

// Handler serves the voicelog API.
type Handler struct {
	svc    *voice.Service
	logger *slog.Logger
}

type extractRequest struct {
	Transcript string `json:"transcript"`
}

type turnRequest struct {
	Transcript string                  `json:"transcript"`
	Payload    *extract.AnalysisResult `json:"payload,omitempty"`
	AskedField string                  `json:"asked_field,omitempty"`
}

type episodeRequest struct {
	UserID     int64                  `json:"user_id"`
	ClipID     string                 `json:"audio_clip_id,omitempty"`
	Payload    extract.AnalysisResult `json:"payload"`
	Transcript string                 `json:"transcript,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}
	res, err := h.svc.Extract(r.Context(), req.Transcript)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !decode(w, r, &req) {
		return
	}
	var prior *extract.Payload
	if req.Payload != nil {
		p := h.svc.Canonicalize(*req.Payload)
		prior = &p
	}
	res, err := h.svc.Turn(r.Context(), req.Transcript, prior, req.AskedField)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateEpisode(w http.ResponseWriter, r *http.Request) {
	var req episodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	p := h.svc.Canonicalize(req.Payload)

	var (
		ep  *store.Episode
		err error
	)
	if req.ClipID != "" {
		ep, err = h.svc.SaveClip(r.Context(), req.UserID, req.ClipID, p)
	} else {
		ep, err = h.svc.Save(r.Context(), req.UserID, 0, p, req.Transcript)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}

func (h *Handler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	userID, err := queryInt(q.Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	opts := store.ListOpts{UserID: userID, Limit: int(limit), Offset: int(offset)}

	episodes, err := st.ListEpisodes(r.Context(), opts)
	if err != nil {
		h.fail(w, err)
		return
	}
	if episodes == nil {
		episodes = []*store.Episode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"episodes": episodes})
}

func (h *Handler) GetEpisode(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	id, ok := episodeID(w, r)
	if !ok {
		return
	}
	ep, err := st.GetEpisode(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) UpdateEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := episodeID(w, r)
	if !ok {
		return
	}
	var a extract.AnalysisResult
	if !decode(w, r, &a) {
		return
	}
	ep, err := h.svc.Save(r.Context(), 0, id, h.svc.Canonicalize(a), "")
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) DeleteEpisode(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	id, ok := episodeID(w, r)
	if !ok {
		return
	}
	if err := st.DeleteEpisode(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) UploadClip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading audio failed")
		return
	}

	format := r.FormValue("format")
	if format == "" {
		if i := strings.LastIndex(hdr.Filename, "."); i >= 0 {
			format = hdr.Filename[i+1:]
		}
	}

	clip, err := h.svc.IngestClip(r.Context(), userID, audio, format)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}

func (h *Handler) GetClip(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	clip, err := st.GetClip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (h *Handler) requireStore(w http.ResponseWriter) (store.Store, bool) {
	st := h.svc.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return nil, false
	}
	return st, true
}

// fail maps service errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, asr.ErrEmptyAudio):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, voice.ErrNoTranscriber):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		var te *asr.TranscriptionError
		if errors.As(err, &te) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// queryInt parses an optional non-negative integer query value.
func queryInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}

func episodeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid episode id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
