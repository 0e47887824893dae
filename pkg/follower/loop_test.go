package follower

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// fakeFrame carries the detection the fake segmenter should report.
type fakeFrame struct {
	w, h     int
	centroid Centroid
	found    bool
	closed   bool
}

func (f *fakeFrame) Size() (int, int) { return f.w, f.h }
func (f *fakeFrame) Close() error     { f.closed = true; return nil }

type fakeSegmenter struct{}

func (fakeSegmenter) Segment(frame Frame) (Centroid, bool) {
	f := frame.(*fakeFrame)
	return f.centroid, f.found
}

// recorder keeps the order of lifecycle calls across fakes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// fakeSource replays frames, then fails.
type fakeSource struct {
	rec    *recorder
	frames []*fakeFrame
	next   int
	closed bool
}

var errEndOfStream = errors.New("end of stream")

func (s *fakeSource) Read() (Frame, error) {
	if s.next >= len(s.frames) {
		return nil, errEndOfStream
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	if s.rec != nil {
		s.rec.add("source.close")
	}
	return nil
}

type enqueued struct {
	cmd steering.Command
	at  time.Time
}

// fakeQueue records enqueues with the test clock time.
type fakeQueue struct {
	rec    *recorder
	clock  *fakeClock
	mu     sync.Mutex
	cmds   []enqueued
	closed bool
	waited bool
}

var errQueueClosed = errors.New("queue closed")

func (q *fakeQueue) Enqueue(cmd steering.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.cmds = append(q.cmds, enqueued{cmd: cmd, at: q.clock.Now()})
	if q.rec != nil {
		q.rec.add("enqueue:" + string(cmd))
	}
	return nil
}

func (q *fakeQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	if q.rec != nil {
		q.rec.add("queue.close")
	}
	return nil
}

func (q *fakeQueue) Wait(time.Duration) bool {
	q.waited = true
	if q.rec != nil {
		q.rec.add("queue.wait")
	}
	return true
}

func (q *fakeQueue) commands() []steering.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]steering.Command, len(q.cmds))
	for i, e := range q.cmds {
		out[i] = e.cmd
	}
	return out
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeDashboard struct {
	snaps []Snapshot
	logs  []string
}

func (d *fakeDashboard) UpdateStatus(s Snapshot)       { d.snaps = append(d.snaps, s) }
func (d *fakeDashboard) AddLog(logType, message string) { d.logs = append(d.logs, logType+":"+message) }

type fakeRenderer struct{ calls int }

func (r *fakeRenderer) Render(Frame, Snapshot) { r.calls++ }

// harness drives Step one frame at a time with a controllable clock.
type harness struct {
	t      *testing.T
	clock  *fakeClock
	source *fakeSource
	queue  *fakeQueue
	loop   *Loop
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	clock := newFakeClock()
	h := &harness{
		t:      t,
		clock:  clock,
		source: &fakeSource{},
		queue:  &fakeQueue{clock: clock},
	}
	opts = append([]Option{WithClock(clock.Now), WithRunID("test-run")}, opts...)
	h.loop = NewLoop(cfg, h.source, fakeSegmenter{}, h.queue, opts...)
	return h
}

// frame feeds one frame after advancing the clock by dt.
func (h *harness) frame(dt time.Duration, x int, found bool) Snapshot {
	h.t.Helper()
	h.clock.Advance(dt)
	f := &fakeFrame{w: 640, h: 480, centroid: Centroid{X: x, Y: 360}, found: found}
	h.source.frames = append(h.source.frames, f)
	snap, err := h.loop.Step()
	if err != nil {
		h.t.Fatalf("Step: %v", err)
	}
	if !f.closed {
		h.t.Error("frame was not released after Step")
	}
	return snap
}

func assertCommands(t *testing.T, got []steering.Command, want ...steering.Command) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("enqueued %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("enqueued %v, want %v", got, want)
		}
	}
}

func TestLoop_GentleRightEnqueuedOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	// Three frames inside the initial cooldown: nothing is sent
	for i := 0; i < 3; i++ {
		snap := h.frame(100*time.Millisecond, 100, true)
		if snap.Dispatched != steering.None {
			t.Fatalf("frame %d dispatched %q during cooldown", i+1, snap.Dispatched)
		}
	}
	assertCommands(t, h.queue.commands())

	// Fourth frame after the cooldown: deviation -60 is a gentle right
	snap := h.frame(600*time.Millisecond, 100, true)
	if snap.Maneuver != steering.GentleRight {
		t.Errorf("maneuver = %v, want gentle-right", snap.Maneuver)
	}
	if snap.Deviation != -60 {
		t.Errorf("deviation = %d, want -60", snap.Deviation)
	}
	assertCommands(t, h.queue.commands(), steering.Right)

	// Identical frames well after the cooldown never re-send
	for i := 0; i < 10; i++ {
		h.frame(time.Second, 100, true)
	}
	assertCommands(t, h.queue.commands(), steering.Right)
}

func TestLoop_SafetyStopOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for i := 1; i <= 20; i++ {
		snap := h.frame(33*time.Millisecond, 0, false)
		switch {
		case i < 11:
			if snap.Dispatched != steering.None || snap.State != StateRunning {
				t.Fatalf("frame %d: dispatched %q state %v", i, snap.Dispatched, snap.State)
			}
		case i == 11:
			if snap.Dispatched != steering.Stop {
				t.Fatalf("frame 11 should dispatch stop, got %q", snap.Dispatched)
			}
			if snap.State != StateNoLine {
				t.Errorf("frame 11 state = %v, want no-line", snap.State)
			}
		default:
			if snap.Dispatched != steering.None {
				t.Fatalf("frame %d re-sent %q", i, snap.Dispatched)
			}
		}
	}
	assertCommands(t, h.queue.commands(), steering.Stop)
	if s := h.loop.Stats(); s.SafetyStops != 1 || s.NoLineStreak != 20 {
		t.Errorf("stats = %+v", s)
	}
}

func TestLoop_CenteredLineForwardOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.clock.Advance(time.Second)
	for i := 0; i < 5; i++ {
		snap := h.frame(33*time.Millisecond, 160, true)
		if snap.Deviation != 0 || snap.Maneuver != steering.Straight {
			t.Fatalf("frame %d: deviation %d maneuver %v", i+1, snap.Deviation, snap.Maneuver)
		}
	}
	assertCommands(t, h.queue.commands(), steering.Forward)
}

func TestLoop_CooldownSpacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 1
	h := newHarness(t, cfg)

	// Alternate far-left and far-right detections every 100ms for 10s
	for i := 0; i < 100; i++ {
		x := 0
		if i%2 == 1 {
			x = 400
		}
		h.frame(100*time.Millisecond, x, true)
	}

	h.queue.mu.Lock()
	defer h.queue.mu.Unlock()
	if len(h.queue.cmds) < 5 {
		t.Fatalf("expected several commands, got %d", len(h.queue.cmds))
	}
	for i := 1; i < len(h.queue.cmds); i++ {
		gap := h.queue.cmds[i].at.Sub(h.queue.cmds[i-1].at)
		if gap <= cfg.Cooldown {
			t.Errorf("commands %d and %d only %v apart", i-1, i, gap)
		}
		if h.queue.cmds[i].cmd == h.queue.cmds[i-1].cmd {
			t.Errorf("duplicate consecutive command %q", h.queue.cmds[i].cmd)
		}
	}
}

func TestLoop_SafetyStopBypassesCooldown(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.frame(time.Second, 160, true) // forward
	for i := 0; i < 11; i++ {
		h.frame(10*time.Millisecond, 0, false)
	}
	assertCommands(t, h.queue.commands(), steering.Forward, steering.Stop)

	h.queue.mu.Lock()
	gap := h.queue.cmds[1].at.Sub(h.queue.cmds[0].at)
	h.queue.mu.Unlock()
	if gap >= DefaultConfig().Cooldown {
		t.Fatalf("stop should have been sent inside the cooldown, gap %v", gap)
	}
}

func TestLoop_SafetyStopRearmsAfterReacquire(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for i := 0; i < 11; i++ {
		h.frame(33*time.Millisecond, 0, false)
	}
	// Line comes back; after the cooldown a new command is due
	snap := h.frame(time.Second, 160, true)
	if snap.State != StateRunning {
		t.Errorf("state after reacquire = %v", snap.State)
	}
	for i := 0; i < 11; i++ {
		h.frame(33*time.Millisecond, 0, false)
	}
	assertCommands(t, h.queue.commands(), steering.Stop, steering.Forward, steering.Stop)
}

func TestLoop_NoLineStreakResets(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for i := 0; i < 10; i++ {
		h.frame(33*time.Millisecond, 0, false)
	}
	h.frame(33*time.Millisecond, 160, true)
	for i := 0; i < 10; i++ {
		snap := h.frame(33*time.Millisecond, 0, false)
		if snap.Dispatched == steering.Stop {
			t.Fatal("streak was not reset by a detection")
		}
	}
}

func TestLoop_SnapshotOverlayFields(t *testing.T) {
	dash := &fakeDashboard{}
	ren := &fakeRenderer{}
	h := newHarness(t, DefaultConfig(), WithStateUpdater(dash), WithRenderer(ren))

	snap := h.frame(400*time.Millisecond, 300, true)
	if snap.ReferenceX != 160 || snap.Width != 640 || snap.Height != 480 {
		t.Errorf("geometry: %+v", snap)
	}
	if !snap.CooldownActive || snap.CooldownPercent != 50 {
		t.Errorf("cooldown = %v %d%%, want active 50%%", snap.CooldownActive, snap.CooldownPercent)
	}
	if snap.RunID != "test-run" {
		t.Errorf("RunID = %q", snap.RunID)
	}
	if ren.calls != 1 || len(dash.snaps) != 1 {
		t.Errorf("renderer calls %d, dashboard updates %d", ren.calls, len(dash.snaps))
	}

	h.frame(time.Second, 300, true)
	if len(dash.logs) != 1 {
		t.Errorf("dispatch should add one dashboard log, got %v", dash.logs)
	}
}

func TestLoop_FPS(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var snap Snapshot
	for i := 0; i < 25; i++ {
		snap = h.frame(50*time.Millisecond, 160, true)
	}
	if snap.FPS != 20 {
		t.Errorf("FPS = %d, want 20", snap.FPS)
	}
}

func TestLoop_RunStopsOnCaptureFailure(t *testing.T) {
	rec := &recorder{}
	clock := newFakeClock()
	source := &fakeSource{rec: rec, frames: []*fakeFrame{
		{w: 640, h: 480, found: false},
		{w: 640, h: 480, found: false},
	}}
	queue := &fakeQueue{rec: rec, clock: clock}
	loop := NewLoop(DefaultConfig(), source, fakeSegmenter{}, queue, WithClock(clock.Now))

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("Run error = %v, want ErrCapture", err)
	}
	if !errors.Is(err, errEndOfStream) {
		t.Errorf("error should wrap the source error: %v", err)
	}

	want := []string{"enqueue:stop", "queue.close", "source.close", "queue.wait"}
	if len(rec.events) != len(want) {
		t.Fatalf("shutdown sequence = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("shutdown sequence = %v, want %v", rec.events, want)
		}
	}
	if s := loop.Stats(); s.State != StateTerminating || s.Frames != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestLoop_RunCancelled(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{}
	queue := &fakeQueue{clock: clock}
	loop := NewLoop(DefaultConfig(), source, fakeSegmenter{}, queue, WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("cancelled Run returned %v", err)
	}
	assertCommands(t, queue.commands(), steering.Stop)
	if !queue.closed || !queue.waited || !source.closed {
		t.Errorf("shutdown incomplete: closed=%v waited=%v source=%v", queue.closed, queue.waited, source.closed)
	}
}

func TestLoop_EnqueueFailureKeepsLastCommand(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.queue.Close()

	snap := h.frame(time.Second, 160, true)
	if snap.Dispatched != steering.None {
		t.Errorf("rejected enqueue reported as dispatched: %q", snap.Dispatched)
	}
	if snap.LastCommand != steering.None {
		t.Errorf("LastCommand = %q, want none", snap.LastCommand)
	}
}

func TestNewLoop_GeneratesRunID(t *testing.T) {
	a := NewLoop(DefaultConfig(), &fakeSource{}, fakeSegmenter{}, &fakeQueue{clock: newFakeClock()})
	b := NewLoop(DefaultConfig(), &fakeSource{}, fakeSegmenter{}, &fakeQueue{clock: newFakeClock()})
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Errorf("run ids %q and %q should be unique", a.RunID(), b.RunID())
	}
}
