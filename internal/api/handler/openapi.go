package handler

import (
	"log/slog"
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/daap14/hafgate/internal/api/middleware"
	"github.com/daap14/hafgate/internal/api/response"
)

// OpenAPIHandler serves the embedded OpenAPI document as JSON.
type OpenAPIHandler struct {
	rawYAML  []byte
	jsonOnce sync.Once
	jsonDoc  []byte
	jsonErr  error
}

// NewOpenAPIHandler creates an OpenAPIHandler. The YAML is converted once, on
// the first request.
func NewOpenAPIHandler(yamlDoc []byte) *OpenAPIHandler {
	return &OpenAPIHandler{rawYAML: yamlDoc}
}

// ServeHTTP writes the document.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		h.jsonDoc, h.jsonErr = yaml.YAMLToJSON(h.rawYAML)
	})

	if h.jsonErr != nil {
		slog.Error("failed to convert OpenAPI document to JSON", "error", h.jsonErr)
		requestID := middleware.GetRequestID(r.Context())
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render API document", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.jsonDoc); err != nil {
		slog.Error("failed to write OpenAPI document", "error", err)
	}
}
