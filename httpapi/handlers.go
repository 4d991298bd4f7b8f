package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/ria/document"
	"github.com/dshills/ria/jobs"
	"github.com/dshills/ria/logging"
	"github.com/dshills/ria/queue"
	"github.com/dshills/ria/repository"
	"github.com/dshills/ria/scrape"
	"github.com/dshills/ria/stream"
	"github.com/dshills/ria/textproc"
)

// Client-facing error messages.
const (
	msgFilenameRequired = "Filename is required"
	msgInvalidFormat    = "Invalid file format. Only PDF and DOCX are allowed."
	msgTooLarge         = "File size exceeds the maximum limit of 2MB."
	msgEmptyFile        = "File is empty."
	msgUnreadableFile   = "Could not read text from file."
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type uploadResponse struct {
	Message  string `json:"message"`
	ResumeID string `json:"resume_id"`
}

type analyzeRequest struct {
	JobURL string `json:"job_url"`
}

type analyzeResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	ResumeDir string `json:"resume_dir"`
}

func (s *Server) uploadResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx, s.log)

	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+64<<10)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		s.writeError(w, r, http.StatusUnprocessableEntity, msgFilenameRequired)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, msgFilenameRequired)
		return
	}
	defer func() { _ = file.Close() }()
	if strings.TrimSpace(header.Filename) == "" {
		s.writeError(w, r, http.StatusUnprocessableEntity, msgFilenameRequired)
		return
	}

	contentType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !document.IsSupported(contentType) {
		s.writeError(w, r, http.StatusUnprocessableEntity, msgInvalidFormat)
		return
	}
	if header.Size > MaxUploadSize {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeServerError(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	text, err := document.Extract(contentType, data)
	if err != nil {
		log.WithError(err).Warn("failed to extract resume text")
		s.writeError(w, r, http.StatusUnprocessableEntity, msgUnreadableFile)
		return
	}
	rawText, err := textproc.Clean(text)
	if err != nil || rawText == "" {
		s.writeError(w, r, http.StatusUnprocessableEntity, msgEmptyFile)
		return
	}

	name := timestampedName(header.Filename, s.now())
	path := filepath.Join(s.uploadDir, name)
	if err := writeChunked(path, data); err != nil {
		s.writeServerError(w, r, err)
		return
	}
	log.WithField("uploaded_resume", name).Info("file saved to upload dir")

	resume := repository.NewResume(header.Filename, rawText)
	if err := s.resumes.Create(ctx, resume); err != nil {
		s.writeServerError(w, r, fmt.Errorf("failed to save resume: %w", err))
		return
	}
	log = log.WithField("resume_id", resume.ID)
	log.Info("resume saved to db")

	reqID := logging.RequestID(ctx)
	if _, err := s.queue.Enqueue(ctx, queue.TypeProcessResume, reqID, jobs.ProcessResumePayload{ResumeID: resume.ID}); err != nil {
		s.writeServerError(w, r, err)
		return
	}
	log.Info("resume dispatched for extraction")

	if _, err := s.queue.Enqueue(ctx, queue.TypeUploadResume, reqID, jobs.UploadResumePayload{ResumeID: resume.ID, FilePath: path}); err != nil {
		s.writeServerError(w, r, err)
		return
	}
	log.Info("resume dispatched for S3 upload")

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  "Resume uploaded and processing initiated",
		ResumeID: resume.ID.String(),
	})
}

func (s *Server) analyzeResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rawID := chi.URLParam(r, "resume_id")
	notFound := fmt.Sprintf("No resume found with ID %s.", rawID)

	id, err := uuid.Parse(rawID)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, notFound)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	req.JobURL = strings.TrimSpace(req.JobURL)
	if req.JobURL == "" {
		s.writeError(w, r, http.StatusUnprocessableEntity, "job_url is required")
		return
	}

	resume, err := s.resumes.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, notFound)
		return
	}
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}

	if _, err := s.scrapers.Resolve(req.JobURL); err != nil {
		if errors.Is(err, scrape.ErrNoScraper) {
			s.writeError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("No scraper registered for %s", req.JobURL))
			return
		}
		s.writeServerError(w, r, err)
		return
	}

	payload := jobs.AnalyzeResumePayload{ResumeText: resume.RawText, JobURL: req.JobURL}
	jobID, err := s.queue.Enqueue(ctx, queue.TypeAnalyzeResume, logging.RequestID(ctx), payload)
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	logging.FromContext(ctx, s.log).WithFields(logrus.Fields{
		"job_id":    jobID,
		"resume_id": id,
		"job_url":   req.JobURL,
	}).Info("resume dispatched for analysis")

	writeJSON(w, http.StatusAccepted, analyzeResponse{Status: "queued", JobID: jobID})
}

func (s *Server) streamAnalysis(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeServerError(w, r, errors.New("response writer does not support flushing"))
		return
	}
	jobID := chi.URLParam(r, "job_id")

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, stream.Preamble); err != nil {
		return
	}
	if err := stream.WriteJSON(w, stream.EventStatus, map[string]string{"status": "listening"}); err != nil {
		return
	}
	flusher.Flush()

	err := s.events.Listen(r.Context(), jobID, func(ev stream.Event) error {
		if err := stream.WriteEvent(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		logging.FromContext(r.Context(), s.log).WithError(err).WithField("job_id", jobID).Error("analysis stream ended")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Database: "healthy", ResumeDir: "false"}

	if _, err := s.db.Exec(r.Context(), "SELECT 1"); err != nil {
		resp.Database = "unhealthy: " + err.Error()
	}
	if fi, err := os.Stat(s.uploadDir); err == nil && fi.IsDir() {
		resp.ResumeDir = "true"
	}

	writeJSON(w, http.StatusOK, resp)
}

// timestampedName inserts a microsecond timestamp before the extension:
// "cv.pdf" becomes "cv-20250504103000123456.pdf".
func timestampedName(filename string, t time.Time) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ts := t.Format("20060102150405") + fmt.Sprintf("%06d", t.Nanosecond()/1000)
	return stem + "-" + ts + ext
}

func writeChunked(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- name is sanitised by timestampedName
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	for len(data) > 0 {
		n := min(len(data), ChunkSize)
		if _, err := f.Write(data[:n]); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		data = data[n:]
	}
	return f.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	logging.FromContext(r.Context(), s.log).WithFields(logrus.Fields{
		"status": status,
		"detail": detail,
	}).Warn("request rejected")
	writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context(), s.log).WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Internal server error"})
}
