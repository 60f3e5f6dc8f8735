package gorefit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Record kinds of the event CSV format.
const (
	seedRecord = "S"
	hitRecord  = "H"
)

const (
	seedFields = 9
	hitFields  = 11
)

// WriteEvents writes the starting state and the pixel hits of every event.
// Truth is not written.
func WriteEvents(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	for _, ev := range events {
		if !ev.Start.IsValid() {
			return fmt.Errorf("gorefit: event %s has an invalid starting state", ev.ID)
		}
		p := ev.Start.Parameters()
		rec := []string{seedRecord, ev.ID.String(), ftoa(ev.Start.Z())}
		for i := 0; i < NumParameters; i++ {
			rec = append(rec, ftoa(p.AtVec(i)))
		}
		rec = append(rec, ftoa(ev.Start.PzSign()))
		if err := cw.Write(rec); err != nil {
			return err
		}
		for _, hit := range ev.Hits {
			rec, err := hitRow(ev.ID, hit)
			if err != nil {
				return err
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func hitRow(id uuid.UUID, hit Hit) ([]string, error) {
	s := hit.Surface()
	rec := []string{hitRecord, id.String(), strconv.FormatUint(uint64(s.DetID), 10), strconv.Itoa(s.Layer), ftoa(s.Z), ftoa(s.Thickness)}
	switch h := hit.(type) {
	case *PixelHit:
		m, c := h.Parameters(), h.Covariance()
		return append(rec, "1", ftoa(m.AtVec(0)), ftoa(m.AtVec(1)), ftoa(math.Sqrt(c.At(0, 0))), ftoa(math.Sqrt(c.At(1, 1)))), nil
	case *InvalidHit:
		return append(rec, "0", "0", "0", "0", "0"), nil
	}
	return nil, fmt.Errorf("gorefit: cannot write hit of type %T", hit)
}

// ReadEvents reads events written by WriteEvents. Hits on the same detector and z
// share one plane.
func ReadEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	type planeKey struct {
		det uint32
		z   float64
	}
	planes := make(map[planeKey]*Plane)
	index := make(map[uuid.UUID]int)
	var events []Event
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("gorefit: record %d: too few fields", line)
		}
		id, err := uuid.Parse(rec[1])
		if err != nil {
			return nil, fmt.Errorf("gorefit: record %d: %w", line, err)
		}
		switch rec[0] {
		case seedRecord:
			if len(rec) != seedFields {
				return nil, fmt.Errorf("gorefit: record %d: expected %d seed fields, got %d", line, seedFields, len(rec))
			}
			v, err := atofs(rec[2:])
			if err != nil {
				return nil, fmt.Errorf("gorefit: record %d: %w", line, err)
			}
			start, err := NewTrajectoryState(NewPlane(0, -1, v[0], 0), v[1:6], Diagonal(DefaultArbitraryErrors...), v[6])
			if err != nil {
				return nil, fmt.Errorf("gorefit: record %d: %w", line, err)
			}
			if _, dup := index[id]; dup {
				return nil, fmt.Errorf("gorefit: record %d: %w: event %s", line, ErrDuplicateLabel, id)
			}
			index[id] = len(events)
			events = append(events, Event{ID: id, Start: start})
		case hitRecord:
			if len(rec) != hitFields {
				return nil, fmt.Errorf("gorefit: record %d: expected %d hit fields, got %d", line, hitFields, len(rec))
			}
			i, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("gorefit: record %d: %w: event %s", line, ErrNotFound, id)
			}
			det, err := strconv.ParseUint(rec[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("gorefit: record %d: %w", line, err)
			}
			layer, err := strconv.Atoi(rec[3])
			if err != nil {
				return nil, fmt.Errorf("gorefit: record %d: %w", line, err)
			}
			v, err := atofs(append(rec[4:6:6], rec[7:]...))
			if err != nil {
				return nil, fmt.Errorf("gorefit: record %d: %w", line, err)
			}
			key := planeKey{uint32(det), v[0]}
			plane, ok := planes[key]
			if !ok {
				plane = NewPlane(uint32(det), layer, v[0], v[1])
				planes[key] = plane
			}
			var hit Hit
			if rec[6] == "1" {
				hit = NewPixelHit(plane, v[2], v[3], v[4], v[5])
			} else {
				hit = NewInvalidHit(plane)
			}
			events[i].Hits = append(events[i].Hits, hit)
		default:
			return nil, fmt.Errorf("gorefit: record %d: unknown record %q", line, rec[0])
		}
	}
	return events, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func atofs(fields []string) ([]float64, error) {
	v := make([]float64, len(fields))
	for i, f := range fields {
		var err error
		if v[i], err = strconv.ParseFloat(f, 64); err != nil {
			return nil, err
		}
	}
	return v, nil
}
