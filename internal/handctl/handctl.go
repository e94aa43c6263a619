// Package handctl runs gesture camera control: it pulls frames from a hand
// tracking source, interprets them, and drives a camera on an animation
// clock.
package handctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phobologic/repoorbit/internal/camera"
	"github.com/phobologic/repoorbit/internal/gesture"
)

// DefaultTickInterval is the animation frame interval (about 60Hz).
const DefaultTickInterval = time.Second / 60

var (
	// ErrHandTrackingInit is returned when the frame source cannot be opened.
	ErrHandTrackingInit = errors.New("hand tracking init failed")
	// ErrRunning is returned by Start while a session is already running.
	ErrRunning = errors.New("gesture control already running")
)

// FrameSource delivers hand landmark frames. Open acquires the capture
// device; Close releases it. Frames is only read between the two.
type FrameSource interface {
	Open(ctx context.Context) error
	Frames() <-chan gesture.Frame
	Close() error
}

// session is the interpreter and camera pair, owned by one goroutine.
type session struct {
	interp *gesture.Interpreter
	cam    *camera.Camera
	logger *slog.Logger
}

func newSession(rig camera.Rig, logger *slog.Logger) *session {
	return &session{
		interp: gesture.NewInterpreter(),
		cam:    camera.New(rig),
		logger: logger,
	}
}

func (s *session) frame(f gesture.Frame, now time.Time) []gesture.Event {
	events := s.interp.Process(f)
	before := s.cam.State()
	s.cam.HandleFrame(events, now)
	if before != s.cam.State() {
		s.logger.Info("gesture control active")
	}
	return events
}

func (s *session) tick(now time.Time) camera.Pose {
	before := s.cam.State()
	pose := s.cam.Tick(now)
	if before == camera.HandControlling && s.cam.State() == camera.Idle {
		s.interp.Reset()
		s.logger.Info("gesture control idle", "timeout", camera.IdleTimeout)
	}
	return pose
}

func (s *session) stop() {
	s.cam.Deactivate()
	s.interp.Reset()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithTickInterval sets the animation frame interval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns one gesture control session at a time.
type Controller struct {
	rig      camera.Rig
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	current *run
}

// run is one started session. closeErr is set before done is closed.
type run struct {
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error
}

// New returns a stopped controller that drives rig.
func New(rig camera.Rig, opts ...Option) *Controller {
	c := &Controller{
		rig:      rig,
		logger:   slog.Default(),
		interval: DefaultTickInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "handctl")
	return c
}

// Start opens source and runs the frame and animation loops until ctx is
// done or Stop is called. Either way the source is closed once and the
// camera returns to idle. If the source cannot be opened, Start returns an
// error wrapping ErrHandTrackingInit and nothing is left running.
func (c *Controller) Start(ctx context.Context, source FrameSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return ErrRunning
	}

	if err := source.Open(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrHandTrackingInit, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	c.current = r
	go c.loop(ctx, r, source, newSession(c.rig, c.logger))
	return nil
}

func (c *Controller) loop(ctx context.Context, r *run, source FrameSource, s *session) {
	defer func() {
		if err := source.Close(); err != nil {
			r.closeErr = fmt.Errorf("closing frame source: %w", err)
		}
		s.stop()

		c.mu.Lock()
		if c.current == r {
			c.current = nil
		}
		c.mu.Unlock()
		close(r.done)
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	frames := source.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				c.logger.Debug("frame source ended")
				frames = nil
				continue
			}
			s.frame(f, c.now())
		case <-ticker.C:
			s.tick(c.now())
		}
	}
}

// Stop ends the running session and waits for it to release the source and
// return the camera to idle. It returns the source's Close error. Stopping
// a stopped controller does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return nil
	}

	r.cancel()
	<-r.done
	return r.closeErr
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}
