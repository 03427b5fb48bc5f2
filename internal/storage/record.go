package storage

import (
	"fmt"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Record is the flat, serializable form of one segment of one pixel
type Record struct {
	RunID             uuid.UUID        `json:"runId"`
	Row               int              `json:"row"`
	Col               int              `json:"col"`
	Index             int              `json:"index"`
	Status            change.Status    `json:"status"`
	StartDate         int              `json:"startDate"`
	EndDate           int              `json:"endDate"`
	BreakDate         int              `json:"breakDate"`
	Category          segment.Category `json:"category"`
	NumC              int              `json:"numC"`
	NumObs            int              `json:"numObs"`
	Coefficients      [][]float64      `json:"coefficients"`
	RMSE              []float64        `json:"rmse"`
	ChangeProbability float64          `json:"changeProbability"`
}

// NewRecords flattens a row into records ordered by column, then segment
func NewRecords(r RowResult) []Record {
	var out []Record
	for _, p := range r.Pixels {
		for i, s := range p.Segments {
			out = append(out, Record{
				RunID:             r.RunID,
				Row:               p.Row,
				Col:               p.Col,
				Index:             i,
				Status:            p.Status,
				StartDate:         s.StartDate,
				EndDate:           s.EndDate,
				BreakDate:         s.BreakDate,
				Category:          s.Category,
				NumC:              s.NumC,
				NumObs:            s.NumObs,
				Coefficients:      s.Coefficients,
				RMSE:              s.RMSE,
				ChangeProbability: s.ChangeProbability,
			})
		}
	}
	return out
}

// Segment converts the record back into a segment
func (r Record) Segment() segment.Segment {
	return segment.Segment{
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		BreakDate:         r.BreakDate,
		Category:          r.Category,
		NumC:              r.NumC,
		NumObs:            r.NumObs,
		Coefficients:      r.Coefficients,
		RMSE:              r.RMSE,
		ChangeProbability: r.ChangeProbability,
	}
}

// EncodeCoefficients packs a coefficient matrix and its RMSE vector into
// msgpack blobs for column storage
func EncodeCoefficients(coef [][]float64, rmse []float64) ([]byte, []byte, error) {
	c, err := msgpack.Marshal(coef)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding coefficients: %w", err)
	}
	e, err := msgpack.Marshal(rmse)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding rmse: %w", err)
	}
	return c, e, nil
}

// DecodeCoefficients reverses EncodeCoefficients
func DecodeCoefficients(c, e []byte) ([][]float64, []float64, error) {
	var coef [][]float64
	var rmse []float64
	if err := msgpack.Unmarshal(c, &coef); err != nil {
		return nil, nil, fmt.Errorf("decoding coefficients: %w", err)
	}
	if err := msgpack.Unmarshal(e, &rmse); err != nil {
		return nil, nil, fmt.Errorf("decoding rmse: %w", err)
	}
	return coef, rmse, nil
}
