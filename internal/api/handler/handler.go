// Package handler implements the HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/daap14/hafgate/internal/database"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// PoolSource exposes the live pool and its state.
type PoolSource interface {
	Current(ctx context.Context) (database.Handle, error)
	Status() database.Status
}

// decodeJSON reads a size-limited JSON body into dst. Numbers are kept as
// json.Number where dst asks for them.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
