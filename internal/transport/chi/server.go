// Package chi exposes the copilot over HTTP with a chi router: document
// upload, streamed answers over server-sent events, references, history
// and session management.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/conversation"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
	"github.com/astro1860/building-review-copliot/internal/domain/response"
	"github.com/astro1860/building-review-copliot/internal/session"
	chatuc "github.com/astro1860/building-review-copliot/internal/usecase/chat"
	healthuc "github.com/astro1860/building-review-copliot/internal/usecase/health"
	usageuc "github.com/astro1860/building-review-copliot/internal/usecase/usage"
)

// DefaultMaxUploadBytes bounds a whole multipart upload.
const DefaultMaxUploadBytes = 64 << 20

// multipartMemory is the part of an upload kept in memory; the rest spills to temp files.
const multipartMemory = 8 << 20

// Server handles the copilot API for a single shared session.
type Server struct {
	chat      *chatuc.Service
	session   *session.Session
	health    *healthuc.Service
	usage     *usageuc.Service
	examples  []string
	maxUpload int64
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(chat *chatuc.Service, sess *session.Session, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		chat:      chat,
		session:   sess,
		health:    health,
		maxUpload: DefaultMaxUploadBytes,
		logger:    logger,
	}
}

// WithExamples sets the example questions offered to clients.
func (s *Server) WithExamples(questions []string) *Server {
	s.examples = append([]string(nil), questions...)
	return s
}

// WithUsage enables GET /api/v1/usage. Usage is only tracked with a cache.
func (s *Server) WithUsage(u *usageuc.Service) *Server {
	s.usage = u
	return s
}

// WithMaxUploadBytes overrides the upload limit.
func (s *Server) WithMaxUploadBytes(n int64) *Server {
	if n > 0 {
		s.maxUpload = n
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.UploadDocuments)
		r.Post("/ask", s.Ask)
		r.Get("/references", s.ListReferences)
		r.Post("/references", s.AddReference)
		r.Delete("/references/{position}", s.DeleteReference)
		r.Get("/history", s.History)
		r.Get("/examples", s.Examples)
		r.Post("/session/reset", s.ResetSession)
		if s.usage != nil {
			r.Get("/usage", s.Usage)
		}
	})
}

type buildFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

type buildResponse struct {
	Documents  int            `json:"documents"`
	Chunks     int            `json:"chunks"`
	Succeeded  []string       `json:"succeeded"`
	Failed     []buildFailure `json:"failed"`
	DurationMS int64          `json:"duration_ms"`
}

// UploadDocuments handles POST /api/v1/documents. The uploaded files replace
// the current index. 207 reports a partial build, 422 a build where every
// document was unreadable.
func (s *Server) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeDocumentTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	docs, err := readSources(r.MultipartForm.File["files"])
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	report, err := s.session.Retriever().Build(r.Context(), docs)
	var buildErr *domain.BuildError
	if err != nil && !errors.As(err, &buildErr) {
		s.handleDomainError(w, err)
		return
	}

	resp := buildResponse{
		Documents:  report.Documents,
		Chunks:     report.Chunks,
		Succeeded:  nonNil(report.Succeeded),
		Failed:     []buildFailure{},
		DurationMS: report.Duration.Milliseconds(),
	}
	status := http.StatusOK
	if buildErr != nil {
		for _, f := range buildErr.Failed {
			resp.Failed = append(resp.Failed, buildFailure{Source: f.SourceID, Error: f.Err.Error()})
		}
		status = http.StatusMultiStatus
		if len(report.Succeeded) == 0 {
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, resp)
}

func readSources(files []*multipart.FileHeader) ([]document.Source, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("multipart field %q is empty: %w", "files", domain.ErrNoDocuments)
	}
	docs := make([]document.Source, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		doc, err := document.New(fh.Filename, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", fh.Filename, err)
	}
	return data, nil
}

type askRequest struct {
	Question string `json:"question"`
}

type contextSource struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  int    `json:"index"`
}

type donePayload struct {
	Response response.Response `json:"response"`
	Grounded bool              `json:"grounded"`
	Sources  []contextSource   `json:"sources"`
}

type errorPayload struct {
	errorResponse
	Partial response.Response `json:"partial"`
}

// Ask handles POST /api/v1/ask. The answer streams as server-sent events:
// one "update" per fragment, then "done" or "error". Failures before the
// first event are plain JSON errors.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.handleDomainError(w, domain.ErrEmptyQuestion)
		return
	}

	events := newEventWriter(w)
	ans, err := s.chat.Ask(r.Context(), s.session, req.Question, func(resp response.Response) error {
		return events.Send("update", resp)
	})
	if err != nil {
		if !events.Started() {
			s.handleDomainError(w, err)
			return
		}
		status, code, msg := classify(err)
		s.logger.Warn("Answer stream failed", zap.Int("status", status), zap.Error(err))
		_ = events.Send("error", errorPayload{
			errorResponse: errorResponse{Code: code, Message: msg},
			Partial:       ans.Response,
		})
		return
	}

	_ = events.Send("done", donePayload{
		Response: ans.Response,
		Grounded: ans.Grounded,
		Sources:  sources(ans.Context),
	})
}

func sources(chunks []chunk.Chunk) []contextSource {
	out := make([]contextSource, len(chunks))
	for i, c := range chunks {
		out[i] = contextSource{Source: c.SourceID(), Page: c.Page(), Index: c.Index()}
	}
	return out
}

type referenceItem struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
}

type referenceListResponse struct {
	Items []referenceItem `json:"items"`
}

type addReferenceRequest struct {
	URL string `json:"url"`
}

// ListReferences handles GET /api/v1/references.
func (s *Server) ListReferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, referencesToResponse(s.session.References()))
}

// AddReference handles POST /api/v1/references.
func (s *Server) AddReference(w http.ResponseWriter, r *http.Request) {
	var req addReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.session.AddReference(req.URL); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, referencesToResponse(s.session.References()))
}

// DeleteReference handles DELETE /api/v1/references/{position}.
func (s *Server) DeleteReference(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "position must be an integer")
		return
	}
	if _, err := s.session.RemoveReferenceAt(position); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, referencesToResponse(s.session.References()))
}

func referencesToResponse(refs []reference.Source) referenceListResponse {
	items := make([]referenceItem, len(refs))
	for i, ref := range refs {
		items[i] = referenceItem{Position: i, URL: ref.URL}
	}
	return referenceListResponse{Items: items}
}

type turnItem struct {
	Role       conversation.Role  `json:"role"`
	RawContent string             `json:"raw_content"`
	CreatedAt  time.Time          `json:"created_at"`
	Response   *response.Response `json:"response,omitempty"`
}

type historyResponse struct {
	SessionID string     `json:"session_id"`
	IndexSize int        `json:"indexed_chunks"`
	Turns     []turnItem `json:"turns"`
}

// History handles GET /api/v1/history. Assistant turns carry their parsed
// reasoning and answer.
func (s *Server) History(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.historyResponse())
}

// ResetSession handles POST /api/v1/session/reset.
func (s *Server) ResetSession(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.historyResponse())
}

func (s *Server) historyResponse() historyResponse {
	turns := s.session.History()
	items := make([]turnItem, len(turns))
	for i, t := range turns {
		items[i] = turnItem{Role: t.Role, RawContent: t.RawContent, CreatedAt: t.CreatedAt}
		if t.Role == conversation.RoleAssistant {
			structured := t.Structured()
			items[i].Response = &structured
		}
	}
	return historyResponse{
		SessionID: s.session.ID(),
		IndexSize: s.session.Retriever().Len(),
		Turns:     items,
	}
}

// Examples handles GET /api/v1/examples.
func (s *Server) Examples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"questions": nonNil(s.examples)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Usage handles GET /api/v1/usage?period=day|month.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	report, err := s.usage.Report(r.Context(), period)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
