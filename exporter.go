package gorefit

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Exporter defines an export interface.
type Exporter interface {
	Write(*Trajectory) error
	Close() error
}

// CSVExporter writes one line per trajectory measurement: the seed, the
// detector, the chi-square and each parameter with its ±2σ band.
type CSVExporter struct {
	delimiter string
	hdlr      io.WriteCloser
}

// Close writes the closing date and closes the underlying writer.
func (e CSVExporter) Close() (err error) {
	err = e.WriteRawLn(fmt.Sprintf("# Closing date (UTC): %s", time.Now().UTC()))
	if err != nil {
		return
	}
	return e.hdlr.Close()
}

// Write writes the updated state of every measurement of t.
func (e CSVExporter) Write(t *Trajectory) error {
	for _, tm := range t.Measurements() {
		state := tm.UpdatedState()
		if !state.IsValid() {
			continue
		}
		vals := make([]string, 4, 4+NumParameters*3)
		vals[0] = t.Seed().ID.String()
		vals[1] = fmt.Sprintf("%d", state.Surface().DetID)
		vals[2] = fmt.Sprintf("%f", state.Z())
		vals[3] = fmt.Sprintf("%f", tm.Estimate())
		for i := 0; i < NumParameters; i++ {
			band := 2 * math.Sqrt(state.Covariance().At(i, i))
			vals = append(vals,
				fmt.Sprintf("%f", state.Parameters().AtVec(i)),
				fmt.Sprintf("%f", band),
				fmt.Sprintf("%f", -1*band))
		}
		if err := e.WriteRawLn(strings.Join(vals, e.delimiter)); err != nil {
			return err
		}
	}
	return nil
}

// WriteRawLn writes a raw line to the CSV file.
func (e CSVExporter) WriteRawLn(s string) error {
	_, err := io.WriteString(e.hdlr, s+"\n")
	return err
}

// NewCSVExporter creates dir/filename and writes the header to it.
func NewCSVExporter(dir, filename string) (*CSVExporter, error) {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return nil, err
	}
	return NewCSVWriterExporter(f)
}

// NewCSVWriterExporter writes the header to w and returns an exporter writing to it.
func NewCSVWriterExporter(w io.WriteCloser) (*CSVExporter, error) {
	delimiter := ","
	hdr := []string{"seed", "det", "z", "chi2"}
	for _, name := range ParameterNames {
		hdr = append(hdr, name, name+"+2s", name+"-2s")
	}
	e := &CSVExporter{delimiter, w}
	if err := e.WriteRawLn(fmt.Sprintf("# Creation date (UTC): %s\n%s", time.Now().UTC(), strings.Join(hdr, delimiter))); err != nil {
		return nil, err
	}
	return e, nil
}
