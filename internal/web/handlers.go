package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/salawat/internal/errors"
)

// TotalReader is the query side of ops.Engine.
type TotalReader interface {
	CurrentTotal(ctx context.Context) (int64, error)
}

// Handlers contains HTTP route handlers for the status server.
type Handlers struct {
	totals TotalReader
}

// TotalResponse is the body of GET /total.
type TotalResponse struct {
	Total   int64  `json:"total"`
	Display string `json:"display"`
}

// HandleTotal handles GET /total.
func (h *Handlers) HandleTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.totals.CurrentTotal(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, TotalResponse{Total: total, Display: humanize.Comma(total)})
}

// HandleHealth handles GET /healthz. The counter is healthy when its durable record can be read.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.totals.CurrentTotal(r.Context()); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// renderError writes err as {"error": {...}} with the error's status.
func renderError(w http.ResponseWriter, err error) {
	var sErr *errors.SalawatError
	if !stderrors.As(err, &sErr) {
		sErr = errors.NewInternal(err)
	}
	renderJSON(w, sErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(sErr.Code),
			"message": sErr.Message,
			"status":  sErr.Status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
