package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-vumeter/internal/capture"
	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

type fakeSession struct {
	id      string
	data    []byte
	reads   atomic.Int64
	stopped atomic.Bool
}

func newFakeSession(id string, level byte) *fakeSession {
	return &fakeSession{id: id, data: bytes.Repeat([]byte{level}, 64)}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Latest() []byte {
	f.reads.Add(1)
	return bytes.Clone(f.data)
}

func (f *fakeSession) Err() string { return "" }

func (f *fakeSession) Stop() error {
	f.stopped.Store(true)
	return nil
}

var errDeviceBusy = errors.New("device busy")

// fakeBackend opens fake sessions. Starts of a gated id signal entered and
// then block until the gate is closed.
type fakeBackend struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	entered  map[string]chan struct{}
	sessions map[string][]*fakeSession
	sources  []types.Source
}

func newFakeBackend(ids ...string) *fakeBackend {
	b := &fakeBackend{
		gates:    make(map[string]chan struct{}),
		entered:  make(map[string]chan struct{}),
		sessions: make(map[string][]*fakeSession),
	}
	for _, id := range ids {
		b.sources = append(b.sources, types.Source{ID: id, Name: id})
	}
	return b
}

// gate returns the channel that releases starts of id and the channel that
// is closed once a start of id is blocked on it.
func (b *fakeBackend) gate(id string) (release, entered chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	release = make(chan struct{})
	entered = make(chan struct{})
	b.gates[id] = release
	b.entered[id] = entered
	return release, entered
}

func (b *fakeBackend) start(ctx context.Context, id string) (capture.Session, error) {
	b.mu.Lock()
	gate, entered := b.gates[id], b.entered[id]
	delete(b.entered, id)
	b.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if id == "broken" {
		return nil, errDeviceBusy
	}

	s := newFakeSession(id, 255)
	b.mu.Lock()
	b.sessions[id] = append(b.sessions[id], s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) list() ([]types.Source, error) {
	return b.sources, nil
}

func (b *fakeBackend) opened(id string) []*fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeSession(nil), b.sessions[id]...)
}

type fakeHandler struct {
	mu      sync.Mutex
	events  []meter.SilenceEvent
	entered int
	resets  int
}

func (h *fakeHandler) HandleEvent(ev meter.SilenceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if ev.JustEntered {
		h.entered++
	}
}

func (h *fakeHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resets++
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
