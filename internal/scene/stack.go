package scene

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chrissnell/ccdc/internal/timeseries"
)

// Stack reads pixels from every scene of a working directory. All scenes
// share the geometry of the first scene's header.
type Stack struct {
	dir    string
	header Header
	scenes []ID
}

// Open discovers the scenes of dir and parses the first scene's header
func Open(dir string, logger *zap.SugaredLogger) (*Stack, error) {
	scenes, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	h, err := ReadHeader(filepath.Join(dir, scenes[0].HeaderFile()))
	if err != nil {
		return nil, err
	}
	if h.DataType != DataTypeInt16 {
		return nil, fmt.Errorf("reflectance data type %d, expected %d: %w", h.DataType, DataTypeInt16, ErrBadHeader)
	}
	if logger != nil {
		logger.Debugf("ENVI header: %d lines, %d samples, data type %d, byte order %v, interleave %s",
			h.Lines, h.Samples, h.DataType, h.ByteOrder, h.Interleave)
		if h.Map != nil {
			logger.Debugf("upper left %.3f/%.3f, pixel %.1fx%.1f, UTM zone %d",
				h.Map.Easting, h.Map.Northing, h.Map.PixelX, h.Map.PixelY, h.Map.Zone)
		}
	}
	return NewStack(dir, h, scenes), nil
}

// NewStack creates a stack over already discovered scenes
func NewStack(dir string, h Header, scenes []ID) *Stack {
	return &Stack{dir: dir, header: h, scenes: scenes}
}

// Header returns the shared scene geometry
func (s *Stack) Header() Header { return s.header }

// Scenes returns the scenes in acquisition order
func (s *Stack) Scenes() []ID { return s.scenes }

// Rows returns the number of raster lines
func (s *Stack) Rows() int { return s.header.Lines }

// Cols returns the number of raster samples per line
func (s *Stack) Cols() int { return s.header.Samples }

// ReadPixel returns one record per scene for the pixel at row, col
func (s *Stack) ReadPixel(row, col int) ([]timeseries.SceneRecord, error) {
	if err := s.check(row, col); err != nil {
		return nil, err
	}
	recs := make([]timeseries.SceneRecord, len(s.scenes))
	for i, id := range s.scenes {
		r, err := s.read(id, row, col, 1)
		if err != nil {
			return nil, err
		}
		recs[i] = r[0]
	}
	return recs, nil
}

// ReadRow returns the records of every pixel in row, indexed [col][scene].
// Each band file is read once for the whole line.
func (s *Stack) ReadRow(row int) ([][]timeseries.SceneRecord, error) {
	if err := s.check(row, 0); err != nil {
		return nil, err
	}
	cols := s.header.Samples
	out := make([][]timeseries.SceneRecord, cols)
	for c := range out {
		out[c] = make([]timeseries.SceneRecord, len(s.scenes))
	}
	for i, id := range s.scenes {
		recs, err := s.read(id, row, 0, cols)
		if err != nil {
			return nil, err
		}
		for c, r := range recs {
			out[c][i] = r
		}
	}
	return out, nil
}

func (s *Stack) check(row, col int) error {
	if row < 0 || row >= s.header.Lines || col < 0 || col >= s.header.Samples {
		return fmt.Errorf("pixel %d,%d outside %dx%d raster", row, col, s.header.Lines, s.header.Samples)
	}
	return nil
}

// read decodes n consecutive pixels of one scene starting at row, col
func (s *Stack) read(id ID, row, col, n int) ([]timeseries.SceneRecord, error) {
	files := id.Files()
	recs := make([]timeseries.SceneRecord, n)
	for i := range recs {
		recs[i].Scene = id.Name
		recs[i].Date = id.Date
	}

	offset := int64(row*s.header.Samples + col)
	for b, name := range files.Reflectance {
		vals, err := s.readInt16(name, offset, n)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			recs[i].Reflectance[b] = float64(v)
		}
	}

	vals, err := s.readInt16(files.Thermal, offset, n)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		recs[i].Thermal = float64(v)
	}

	buf := make([]byte, n)
	err = s.withFile(files.QA, func(f *os.File) error {
		_, err := f.ReadAt(buf, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, q := range buf {
		recs[i].QA = timeseries.QA(q)
	}
	return recs, nil
}

func (s *Stack) readInt16(name string, offset int64, n int) ([]int16, error) {
	buf := make([]byte, 2*n)
	err := s.withFile(name, func(f *os.File) error {
		_, err := f.ReadAt(buf, 2*offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	vals := make([]int16, n)
	for i := range vals {
		vals[i] = int16(s.header.ByteOrder.Uint16(buf[2*i:]))
	}
	return vals, nil
}

// withFile opens name in the stack directory for the duration of fn
func (s *Stack) withFile(name string, fn func(*os.File) error) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("opening band file: %w", err)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}
