package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pixelbatch/internal/archive"
	"pixelbatch/internal/format"
	"pixelbatch/internal/ingest"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/preflight"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/scheduler"
	"pixelbatch/internal/services"
)

const multipartMemory = 32 << 20

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, FromState(s.deps.Store.Snapshot()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files in upload")
		return
	}
	inputs := make([]ingest.Input, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		inputs = append(inputs, ingest.Input{Name: fh.Filename, Declared: fh.Header.Get("Content-Type"), Data: data})
	}

	report, err := s.deps.Ingestor.Ingest(r.Context(), inputs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.deps.Scheduler.Pump()
	s.writeJSON(w, http.StatusCreated, FromIngestReport(report))
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Scheduler.Clear(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scheduler.Remove(chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Scheduler.Retry(id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	item, _ := s.deps.Store.Item(id)
	s.writeJSON(w, http.StatusAccepted, FromQueueItem(item))
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req FormatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f, ok := format.ParseOutput(req.Format)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported output format %q", req.Format))
		return
	}
	if err := s.deps.Store.Dispatch(queue.SetOutputFormat{Format: f}); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromState(s.deps.Store.Snapshot()))
}

func (s *Server) handleConvert(w http.ResponseWriter, _ *http.Request) {
	err := s.deps.Scheduler.Start(s.deps.baseContext())
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		err = s.deps.Scheduler.Resume()
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, FromState(s.deps.Store.Snapshot()))
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Scheduler.Pause(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, FromState(s.deps.Store.Snapshot()))
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	data, mime, ok := s.deps.Registry.Open(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	manifest, err := s.deps.Packager.Write(r.Context(), &buf, s.deps.Store.Snapshot().Items)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	name := s.deps.Config.Paths.ArchiveName
	if name == "" {
		name = archive.DefaultName
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Archive-Entries", strconv.Itoa(len(manifest.Entries)))
	w.Header().Set("X-Archive-Duplicates", strconv.Itoa(len(manifest.Skipped)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := preflight.RunAll(r.Context(), s.deps.Config, 0)
	resp := FromPreflight(results, preflight.CheckCodecs(r.Context()))
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	kind, message := services.Details(err)
	s.writeJSON(w, errorStatus(err), ErrorResponse{Error: message, Kind: kind})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrItemNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, services.ErrPackaging):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
