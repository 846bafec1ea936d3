package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

// ErrorCode is the machine-readable error code in API responses.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeEmptyQuestion     ErrorCode = "empty_question"
	CodeNoDocuments       ErrorCode = "no_documents"
	CodeDocumentTooLarge  ErrorCode = "document_too_large"
	CodeUnreadable        ErrorCode = "document_unreadable"
	CodeReferenceExists   ErrorCode = "reference_already_exists"
	CodeReferenceNotFound ErrorCode = "reference_not_found"
	CodeEmbeddingProvider ErrorCode = "embedding_provider_error"
	CodeGenerationError   ErrorCode = "generation_provider_error"
	CodeProviderTimeout   ErrorCode = "provider_timeout"
	CodeCircuitOpen       ErrorCode = "provider_unavailable"
	CodeStreamAborted     ErrorCode = "stream_aborted"
	CodeInternal          ErrorCode = "internal_error"
)

type errorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorMapping binds a sentinel to a status. Order matters: provider
// timeouts and open circuits also carry the provider sentinel.
type errorMapping struct {
	sentinel error
	status   int
	code     ErrorCode
}

var errorMappings = []errorMapping{
	{domain.ErrEmptyQuestion, http.StatusBadRequest, CodeEmptyQuestion},
	{domain.ErrNoDocuments, http.StatusBadRequest, CodeNoDocuments},
	{domain.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrDuplicateReference, http.StatusConflict, CodeReferenceExists},
	{domain.ErrReferenceNotFound, http.StatusNotFound, CodeReferenceNotFound},
	{domain.ErrUnreadableDocument, http.StatusUnprocessableEntity, CodeUnreadable},
	{domain.ErrExternalTimeout, http.StatusGatewayTimeout, CodeProviderTimeout},
	{domain.ErrCircuitOpen, http.StatusServiceUnavailable, CodeCircuitOpen},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider},
	{domain.ErrGenerationProviderError, http.StatusBadGateway, CodeGenerationError},
	{domain.ErrStreamAborted, http.StatusInternalServerError, CodeStreamAborted},
}

// classify returns the status, code and client-safe message for err.
// Client errors keep their full message; server-side ones expose only the
// sentinel text.
func classify(err error) (int, ErrorCode, string) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		if m.status < http.StatusInternalServerError {
			return m.status, m.code, err.Error()
		}
		return m.status, m.code, m.sentinel.Error()
	}
	return http.StatusInternalServerError, CodeInternal, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Warn("domain error", zap.Error(err))
	}
	writeError(w, status, code, msg)
}
