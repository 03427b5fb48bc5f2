package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/pkg/ordinal"
	"github.com/chrissnell/ccdc/pkg/responseformat"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// repositoryName is the health entry of the served repository
const repositoryName = "repository"

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GetSegments returns every segment of one pixel. The run defaults to the
// latest stored run; ?run=<uuid> selects another.
func (h *Handlers) GetSegments(w http.ResponseWriter, req *http.Request) {
	pixel, recs, ok := h.loadPixel(w, req)
	if !ok {
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, transformPixel(recs, pixel))
}

// GetSegmentAt returns the segment owning a date (YYYY-MM-DD or ordinal day)
func (h *Handlers) GetSegmentAt(w http.ResponseWriter, req *http.Request) {
	date, err := ordinal.Parse(mux.Vars(req)["date"])
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	_, recs, ok := h.loadPixel(w, req)
	if !ok {
		return
	}

	rec, found := recordAt(recs, date)
	if !found {
		h.formatter.WriteError(w, req, http.StatusNotFound,
			fmt.Sprintf("no segment covers %s", ordinal.Format(date)))
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, transformSegment(rec))
}

// GetLatestRun returns the id of the most recent run
func (h *Handlers) GetLatestRun(w http.ResponseWriter, req *http.Request) {
	id, err := h.controller.repo.LatestRun(req.Context())
	if errors.Is(err, storage.ErrNoRuns) {
		h.formatter.WriteError(w, req, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, RunResponse{RunID: id})
}

// GetHealth pings the repository and reports every known engine
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	status, code := storage.StatusHealthy, http.StatusOK
	if err := h.controller.repo.Ping(ctx); err != nil {
		h.controller.health.RecordError(repositoryName, err)
		status, code = storage.StatusUnhealthy, http.StatusServiceUnavailable
	} else {
		h.controller.health.UpdateHealth(repositoryName, storage.StatusHealthy, "ping ok")
	}

	h.formatter.WriteResponse(w, req, code, HealthResponse{
		Status:  status,
		Engines: h.controller.health.GetAllHealth(),
	})
}

// loadPixel parses the row, column and run of a request and loads the
// pixel's records, writing an error response when it cannot
func (h *Handlers) loadPixel(w http.ResponseWriter, req *http.Request) (PixelResponse, []storage.Record, bool) {
	vars := mux.Vars(req)
	row, errRow := strconv.Atoi(vars["row"])
	col, errCol := strconv.Atoi(vars["col"])
	if errRow != nil || errCol != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "row and col must be integers")
		return PixelResponse{}, nil, false
	}

	runID, err := h.runID(req)
	if errors.Is(err, storage.ErrNoRuns) {
		h.formatter.WriteError(w, req, http.StatusNotFound, err.Error())
		return PixelResponse{}, nil, false
	}
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return PixelResponse{}, nil, false
	}

	recs, err := h.controller.repo.Segments(req.Context(), runID, row, col)
	if err != nil {
		h.internalError(w, req, err)
		return PixelResponse{}, nil, false
	}
	if len(recs) == 0 {
		h.formatter.WriteError(w, req, http.StatusNotFound,
			fmt.Sprintf("no segments stored for pixel (%d, %d)", row, col))
		return PixelResponse{}, nil, false
	}

	return PixelResponse{RunID: runID, Row: row, Col: col}, recs, true
}

func (h *Handlers) runID(req *http.Request) (uuid.UUID, error) {
	if s := req.URL.Query().Get("run"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid run id %q", s)
		}
		return id, nil
	}
	return h.controller.repo.LatestRun(req.Context())
}

func (h *Handlers) internalError(w http.ResponseWriter, req *http.Request, err error) {
	h.controller.logger.Errorf("error serving %s: %v", req.URL.Path, err)
	h.formatter.WriteError(w, req, http.StatusInternalServerError, "internal error")
}
