package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daap14/hafgate/internal/api/handler"
)

func TestOpenAPIHandler_ServesJSON(t *testing.T) {
	yamlDoc := []byte("openapi: 3.0.3\ninfo:\n  title: hafgate\n  version: 1.0.0\npaths: {}\n")
	h := handler.NewOpenAPIHandler(yamlDoc)

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		var doc map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "3.0.3", doc["openapi"])
		assert.Equal(t, "hafgate", doc["info"].(map[string]any)["title"])
	}
}

func TestOpenAPIHandler_InvalidYAML(t *testing.T) {
	h := handler.NewOpenAPIHandler([]byte("openapi: [unterminated"))
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeEnvelope(t, w)["code"])
}
