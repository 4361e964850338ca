package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

func newTestEngine(t *testing.T, b *fakeBackend) *Engine {
	t.Helper()
	e := New(Options{
		TickRate: 1000,
		Start:    b.start,
		List:     b.list,
	})
	t.Cleanup(func() {
		if err := e.Stop(); err != nil {
			t.Errorf("Stop() = %v", err)
		}
	})
	return e
}

func TestEngineLastWriterWins(t *testing.T) {
	b := newFakeBackend("a", "b")
	e := newTestEngine(t, b)
	if err := e.Start(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	// A's start is in flight and stalls until after B was requested.
	gateA, enteredA := b.gate("a")
	genA := e.SelectSource("a")
	select {
	case <-enteredA:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a to start opening")
	}
	genB := e.SelectSource("b")
	if genB <= genA {
		t.Fatalf("generations not increasing: a=%d b=%d", genA, genB)
	}

	if s, _ := e.switcher.Current(); s != nil {
		t.Fatalf("a source is attached while both starts are pending: %v", s.ID())
	}
	close(gateA)

	waitFor(t, "b to attach", func() bool {
		s, gen := e.switcher.Current()
		return s != nil && gen == genB
	})

	as := b.opened("a")
	if len(as) != 1 {
		t.Fatalf("opened %d sessions for a, want 1", len(as))
	}
	if !as[0].stopped.Load() {
		t.Error("superseded session a was not stopped")
	}
	if as[0].reads.Load() != 0 {
		t.Errorf("superseded session a fed the meter %d times", as[0].reads.Load())
	}
	if bs := b.opened("b"); len(bs) != 1 || bs[0].stopped.Load() {
		t.Errorf("session b = %d opened, want one running", len(bs))
	}
	if st := e.Status(); st.SourceID != "b" {
		t.Errorf("status source = %q, want b", st.SourceID)
	}
}

func TestEngineDetachesImmediately(t *testing.T) {
	b := newFakeBackend("a", "b")
	e := newTestEngine(t, b)
	if err := e.Start(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	genA := e.SelectSource("a")
	waitFor(t, "a to attach", func() bool {
		_, gen := e.switcher.Current()
		return gen == genA && e.Status().State == types.StateCapturing
	})

	gateB, _ := b.gate("b")
	defer close(gateB)
	e.SelectSource("b")

	if s, _ := e.switcher.Current(); s != nil {
		t.Errorf("previous source still attached: %s", s.ID())
	}
	if st := e.Status(); st.State != types.StateStarting {
		t.Errorf("state = %s, want starting", st.State)
	}
	waitFor(t, "a to stop", func() bool {
		return b.opened("a")[0].stopped.Load()
	})
}

func TestEngineNoSource(t *testing.T) {
	b := newFakeBackend("a")
	e := newTestEngine(t, b)
	if err := e.Start(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	e.SelectSource("a")
	waitFor(t, "a to attach", func() bool { return e.Status().State == types.StateCapturing })

	gen := e.SelectSource("-- none --")
	waitFor(t, "a to stop", func() bool { return b.opened("a")[0].stopped.Load() })

	if st := e.Status(); st.State != types.StateIdle || st.SourceID != "" {
		t.Errorf("status = %+v, want idle without source", st)
	}
	waitFor(t, "silent frame", func() bool {
		snap := e.Snapshot()
		return snap.Session == gen && snap.Level == meter.MinDB
	})
}

func TestEngineStartFailure(t *testing.T) {
	b := newFakeBackend("broken")
	e := newTestEngine(t, b)
	if err := e.Start(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	e.SelectSource("broken")
	waitFor(t, "start failure", func() bool { return e.Status().LastError != "" })

	st := e.Status()
	if st.State != types.StateIdle {
		t.Errorf("state = %s, want idle", st.State)
	}
	if !strings.Contains(st.LastError, errDeviceBusy.Error()) {
		t.Errorf("last error = %q", st.LastError)
	}
	if s, _ := e.switcher.Current(); s != nil {
		t.Error("failed start attached a source")
	}
}

func TestEngineAutoSelect(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		want    types.CaptureState
	}{
		{"listed source is selected", "a", types.StateCapturing},
		{"unlisted source is ignored", "gone", types.StateIdle},
		{"no saved source", "", types.StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend("a")
			e := newTestEngine(t, b)
			if err := e.Start(t.Context(), tt.initial); err != nil {
				t.Fatal(err)
			}
			waitFor(t, string(tt.want), func() bool { return e.Status().State == tt.want })
			if tt.want == types.StateIdle && len(b.opened("gone")) != 0 {
				t.Error("unlisted source was opened")
			}
		})
	}
}

func TestEngineStop(t *testing.T) {
	b := newFakeBackend("a")
	e := New(Options{TickRate: 1000, Start: b.start, List: b.list})
	if err := e.Start(t.Context(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(t.Context(), ""); err == nil {
		t.Error("second Start succeeded")
	}
	waitFor(t, "a to attach", func() bool { return e.Status().State == types.StateCapturing })
	waitFor(t, "the needle to rise", func() bool { return e.Snapshot().Value > meter.MinDB })

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if snap := e.Snapshot(); snap.Value != meter.MinDB || snap.Peak != meter.MinDB || snap.PeakActive {
		t.Errorf("snapshot after stop = %+v, want needle at rest", snap)
	}
	if !b.opened("a")[0].stopped.Load() {
		t.Error("session not stopped")
	}
	if st := e.Status(); st.State != types.StateIdle {
		t.Errorf("state = %s after stop", st.State)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}
