package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ria/document"
	"github.com/dshills/ria/jobs"
	"github.com/dshills/ria/queue"
	"github.com/dshills/ria/repository"
	"github.com/dshills/ria/repository/memory"
	"github.com/dshills/ria/stream"
)

type enqueued struct {
	id, jobType, requestID string
	payload                any
}

type fakeQueue struct {
	jobs []enqueued
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, jobType, requestID string, payload any) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	id := uuid.NewString()
	q.jobs = append(q.jobs, enqueued{id, jobType, requestID, payload})
	return id, nil
}

type fakeListener struct {
	events []stream.Event
	jobID  string
}

func (l *fakeListener) Listen(_ context.Context, jobID string, fn func(stream.Event) error) error {
	l.jobID = jobID
	for _, ev := range l.events {
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Terminal() {
			return nil
		}
	}
	return nil
}

type fakeDB struct{ err error }

func (d fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, d.err
}

type testServer struct {
	*Server
	handler http.Handler
	resumes *memory.Resumes
	queue   *fakeQueue
	events  *fakeListener
	dir     string
	reg     *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	ts := &testServer{
		resumes: memory.NewResumes(),
		queue:   &fakeQueue{},
		events:  &fakeListener{},
		dir:     t.TempDir(),
		reg:     prometheus.NewRegistry(),
	}
	ts.Server = NewServer(Deps{
		Resumes:    ts.resumes,
		Queue:      ts.queue,
		Events:     ts.events,
		DB:         fakeDB{},
		UploadDir:  ts.dir,
		Log:        log,
		Gatherer:   ts.reg,
		Registerer: ts.reg,
	})
	ts.now = func() time.Time { return time.Date(2025, 5, 4, 10, 30, 0, 123456000, time.UTC) }
	ts.handler = ts.Handler()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func buildDOCX(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/resumes/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Detail
}

func TestUploadResume(t *testing.T) {
	ts := newTestServer(t)
	req := uploadRequest(t, "jane cv.docx", document.ContentTypeDOCX, buildDOCX(t, "Jane Doe Senior Go Engineer"))
	req.Header.Set(RequestIDHeader, "0b6c3f4e-8a7d-4c2b-9f1e-2d3c4b5a6978")

	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0b6c3f4e-8a7d-4c2b-9f1e-2d3c4b5a6978", rec.Header().Get(RequestIDHeader))

	var resp uploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Resume uploaded and processing initiated", resp.Message)

	id, err := uuid.Parse(resp.ResumeID)
	require.NoError(t, err)
	stored, err := ts.resumes.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "jane cv.docx", stored.Filename)
	assert.Contains(t, stored.RawText, "Jane Doe")

	saved := filepath.Join(ts.dir, "jane cv-20250504103000123456.docx")
	_, err = os.Stat(saved)
	require.NoError(t, err)

	require.Len(t, ts.queue.jobs, 2)
	assert.Equal(t, queue.TypeProcessResume, ts.queue.jobs[0].jobType)
	assert.Equal(t, jobs.ProcessResumePayload{ResumeID: id}, ts.queue.jobs[0].payload)
	assert.Equal(t, queue.TypeUploadResume, ts.queue.jobs[1].jobType)
	assert.Equal(t, jobs.UploadResumePayload{ResumeID: id, FilePath: saved}, ts.queue.jobs[1].payload)
	assert.Equal(t, "0b6c3f4e-8a7d-4c2b-9f1e-2d3c4b5a6978", ts.queue.jobs[1].requestID)
}

func TestUploadResume_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		detail string
	}{
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/resumes/upload", strings.NewReader("{}"))
			},
			status: http.StatusUnprocessableEntity,
			detail: msgFilenameRequired,
		},
		{
			name: "blank filename",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "   ", document.ContentTypePDF, []byte("%PDF"))
			},
			status: http.StatusUnprocessableEntity,
			detail: msgFilenameRequired,
		},
		{
			name: "wrong format",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "cv.txt", "text/plain", []byte("hello"))
			},
			status: http.StatusUnprocessableEntity,
			detail: msgInvalidFormat,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "cv.pdf", document.ContentTypePDF, bytes.Repeat([]byte("a"), MaxUploadSize+1))
			},
			status: http.StatusRequestEntityTooLarge,
			detail: msgTooLarge,
		},
		{
			name: "blank document",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "cv.docx", document.ContentTypeDOCX, buildDOCX(t, "   "))
			},
			status: http.StatusUnprocessableEntity,
			detail: msgEmptyFile,
		},
		{
			name: "corrupt document",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "cv.docx", document.ContentTypeDOCX, []byte("not a zip"))
			},
			status: http.StatusUnprocessableEntity,
			detail: msgUnreadableFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(tt.req(t))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decodeDetail(t, rec))
			assert.Empty(t, ts.queue.jobs)

			entries, err := os.ReadDir(ts.dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing is saved for rejected uploads")
		})
	}
}

func newAnalyzeRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/resumes/"+id+"/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAnalyzeResume(t *testing.T) {
	ts := newTestServer(t)
	r := repository.NewResume("cv.pdf", "Jane Doe")
	require.NoError(t, ts.resumes.Create(context.Background(), r))

	rec := ts.do(newAnalyzeRequest(r.ID.String(), `{"job_url":"https://www.seek.com.au/job/123"}`))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "queued", resp.Status)

	require.Len(t, ts.queue.jobs, 1)
	job := ts.queue.jobs[0]
	assert.Equal(t, queue.TypeAnalyzeResume, job.jobType)
	assert.Equal(t, job.id, resp.JobID)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), job.requestID)
	assert.Equal(t, jobs.AnalyzeResumePayload{ResumeText: "Jane Doe", JobURL: "https://www.seek.com.au/job/123"}, job.payload)
}

func TestAnalyzeResume_RepeatedRequestIDGetsNewJobs(t *testing.T) {
	ts := newTestServer(t)
	r := repository.NewResume("cv.pdf", "Jane Doe")
	require.NoError(t, ts.resumes.Create(context.Background(), r))

	const requestID = "11111111-1111-1111-1111-111111111111"
	var jobIDs []string
	for range 2 {
		req := newAnalyzeRequest(r.ID.String(), `{"job_url":"https://www.seek.com.au/job/123"}`)
		req.Header.Set(RequestIDHeader, requestID)
		rec := ts.do(req)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, requestID, rec.Header().Get(RequestIDHeader))

		var resp analyzeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.NotEqual(t, requestID, resp.JobID)
		jobIDs = append(jobIDs, resp.JobID)
	}

	assert.NotEqual(t, jobIDs[0], jobIDs[1])
	require.Len(t, ts.queue.jobs, 2)
	assert.Equal(t, requestID, ts.queue.jobs[0].requestID)
	assert.Equal(t, requestID, ts.queue.jobs[1].requestID)
}

func TestAnalyzeResume_Rejections(t *testing.T) {
	ts := newTestServer(t)
	r := repository.NewResume("cv.pdf", "Jane Doe")
	require.NoError(t, ts.resumes.Create(context.Background(), r))

	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{"invalid id", "not-a-uuid", `{"job_url":"https://www.seek.com.au/job/1"}`, http.StatusNotFound},
		{"unknown resume", uuid.NewString(), `{"job_url":"https://www.seek.com.au/job/1"}`, http.StatusNotFound},
		{"missing job_url", r.ID.String(), `{}`, http.StatusUnprocessableEntity},
		{"malformed body", r.ID.String(), `{`, http.StatusUnprocessableEntity},
		{"unsupported site", r.ID.String(), `{"job_url":"https://jobs.example.com/1"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(newAnalyzeRequest(tt.id, tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeDetail(t, rec))
		})
	}
	assert.Empty(t, ts.queue.jobs)
}

func TestAnalyzeResume_EnqueueFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.queue.err = errors.New("redis down")
	r := repository.NewResume("cv.pdf", "Jane Doe")
	require.NoError(t, ts.resumes.Create(context.Background(), r))

	rec := ts.do(newAnalyzeRequest(r.ID.String(), `{"job_url":"https://www.linkedin.com/jobs/view/1"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeDetail(t, rec))
}

func TestStreamAnalysis(t *testing.T) {
	ts := newTestServer(t)
	ts.events.events = []stream.Event{
		{ID: "1-0", Type: stream.EventStatus, Payload: json.RawMessage(`{"status": "scraping"}`)},
		{ID: "2-0", Type: stream.EventDelta, Payload: json.RawMessage(`{"text":"Good\nfit"}`)},
		{ID: "3-0", Type: stream.EventDone, Payload: json.RawMessage(`{"status":"complete"}`)},
		{ID: "4-0", Type: stream.EventDelta, Payload: json.RawMessage(`{"text":"late"}`)},
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/analysis/job-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, "job-1", ts.events.jobID)

	want := ":\n\n" +
		"event: status\ndata: {\"status\":\"listening\"}\n\n" +
		"event: status\ndata: {\"status\":\"scraping\"}\n\n" +
		"event: delta\ndata: {\"text\":\"Good\\nfit\"}\n\n" +
		"event: done\ndata: {\"status\":\"complete\"}\n\n"
	assert.Equal(t, want, rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, healthResponse{Status: "healthy", Database: "healthy", ResumeDir: "true"}, resp)

	ts.db = fakeDB{err: errors.New("connection refused")}
	ts.uploadDir = filepath.Join(ts.dir, "missing")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy: connection refused", resp.Database)
	assert.Equal(t, "false", resp.ResumeDir)
}

func TestRequestIDAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "../../etc")
	rec := ts.do(req)

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "unsafe client IDs are replaced")

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.requests.WithLabelValues(http.MethodGet, "/health", "200")))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ria_http_requests_total")
}

func TestTimestampedName(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	assert.Equal(t, "cv-20250102030405000006.pdf", timestampedName("cv.pdf", ts))
	assert.Equal(t, "my.cv-20250102030405000006.docx", timestampedName("my.cv.docx", ts))
	assert.Equal(t, "resume-20250102030405000006", timestampedName("resume", ts))
	assert.Equal(t, "cv-20250102030405000006.pdf", timestampedName(`C:\Users\me\cv.pdf`, ts))
	assert.Equal(t, "cv-20250102030405000006.pdf", timestampedName("../../cv.pdf", ts))
}
