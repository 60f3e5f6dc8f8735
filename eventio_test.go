package gorefit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsRoundTrip(t *testing.T) {
	ev := simulatedEvent(t, 4, 23)
	ev.Hits[2] = NewInvalidHit(ev.Hits[2].Surface())
	other := simulatedEvent(t, 2, 24)

	var buf bytes.Buffer
	require.NoError(t, WriteEvents(&buf, []Event{ev, other}))
	events, err := ReadEvents(&buf)
	require.NoError(t, err)
	require.Len(t, events, 2)

	got := events[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Start.Z(), got.Start.Z())
	assert.Equal(t, ev.Start.Parameters().RawVector().Data, got.Start.Parameters().RawVector().Data)
	require.Len(t, got.Hits, 4)
	assert.False(t, got.Hits[2].IsValid())
	assert.Equal(t, ev.Hits[1].Parameters().RawVector().Data, got.Hits[1].Parameters().RawVector().Data)
	assert.InDelta(t, ev.Hits[1].Covariance().At(0, 0), got.Hits[1].Covariance().At(0, 0), 1e-15)
	assert.Equal(t, 1, got.Hits[1].Surface().Layer)
	assert.Len(t, events[1].Hits, 2)
	// Hits on the same detector share their plane.
	assert.Same(t, got.Hits[0].Surface(), events[1].Hits[0].Surface())

	// The refit does not depend on the round trip.
	r := standardReFitter(t)
	assert.InDelta(t, ev.Refit(r)[0].Chi2(), got.Refit(r)[0].Chi2(), 1e-9)
}

func TestReadEventsErrors(t *testing.T) {
	id := uuid.New().String()
	cases := map[string]string{
		"unknown record": "X," + id + "\n",
		"bad uuid":       "S,nope,0,0,0,0,0,0.1,1\n",
		"short seed":     "S," + id + ",0,0\n",
		"bad pz":         "S," + id + ",0,0,0,0,0,0.1,0\n",
		"bad float":      "S," + id + ",0,a,0,0,0,0.1,1\n",
		"orphan hit":     "H," + id + ",1,0,0,0,1,0,0,0.01,0.01\n",
		"short hit":      "S," + id + ",0,0,0,0,0,0.1,1\nH," + id + ",1,0\n",
		"bad det":        "S," + id + ",0,0,0,0,0,0.1,1\nH," + id + ",x,0,0,0,1,0,0,0.01,0.01\n",
		"too short":      "S\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadEvents(strings.NewReader(in))
			assert.Error(t, err)
		})
	}

	_, err := ReadEvents(strings.NewReader("H," + id + ",1,0,0,0,1,0,0,0.01,0.01\n"))
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = ReadEvents(strings.NewReader("S," + id + ",0,0,0,0,0,0.1,1\nS," + id + ",0,0,0,0,0,0.1,1\n"))
	assert.True(t, errors.Is(err, ErrDuplicateLabel))
}

func TestReadEventsComments(t *testing.T) {
	id := uuid.New().String()
	events, err := ReadEvents(strings.NewReader("# simulated\nS," + id + ",0,0,0,0,0,0.1,-1\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, -1.0, events[0].Start.PzSign())
	assert.Empty(t, events[0].Hits)
}

func TestWriteEventsErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteEvents(&buf, []Event{{ID: uuid.New()}}))

	ev := simulatedEvent(t, 1, 25)
	strip := NewStripHit(ev.Hits[0].Surface(), 0, 1, 0.1)
	ev.Hits = []Hit{strip}
	assert.Error(t, WriteEvents(&buf, []Event{ev}))
}
