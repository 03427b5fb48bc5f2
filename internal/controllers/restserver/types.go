package restserver

import (
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/google/uuid"
)

// SegmentResponse is one segment as served over HTTP. Dates are given both
// as ordinal days and as calendar dates.
type SegmentResponse struct {
	Index             int         `json:"index"`
	StartDate         int         `json:"startDate"`
	EndDate           int         `json:"endDate"`
	BreakDate         int         `json:"breakDate,omitempty"`
	Start             string      `json:"start"`
	End               string      `json:"end"`
	Break             string      `json:"break,omitempty"`
	Category          string      `json:"category"`
	NumC              int         `json:"numC"`
	NumObs            int         `json:"numObs"`
	Coefficients      [][]float64 `json:"coefficients"`
	RMSE              []float64   `json:"rmse"`
	ChangeProbability float64     `json:"changeProbability"`
}

// PixelResponse is the full history of one pixel
type PixelResponse struct {
	RunID    uuid.UUID         `json:"runId"`
	Row      int               `json:"row"`
	Col      int               `json:"col"`
	Status   string            `json:"status,omitempty"`
	Segments []SegmentResponse `json:"segments"`
}

// RunResponse names a stored run
type RunResponse struct {
	RunID uuid.UUID `json:"runId"`
}

// HealthResponse reports the repository and every known sink
type HealthResponse struct {
	Status  string                    `json:"status"`
	Engines map[string]storage.Health `json:"engines"`
}
