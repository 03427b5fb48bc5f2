package storage

import (
	"sync"

	"github.com/chrissnell/ccdc/internal/log"
)

// rowBuffer is the channel depth given to every sink engine
const rowBuffer = 16

// NewRowChannel creates the input channel of a sink engine
func NewRowChannel() chan RowResult {
	return make(chan RowResult, rowBuffer)
}

// ProcessRows hands every row to processor until rows is closed, recording
// the outcome in health under name. The caller must wg.Add(1) before
// starting it.
func ProcessRows(wg *sync.WaitGroup, rows <-chan RowResult, processor func(RowResult) error, name string, health *HealthManager) {
	defer wg.Done()

	for r := range rows {
		if err := processor(r); err != nil {
			log.Errorf("%s row processor error on row %d: %v", name, r.Row, err)
			health.RecordError(name, err)
			continue
		}
		health.RecordWrite(name)
	}
	log.Infof("%s row channel closed, storage engine stopped", name)
}
