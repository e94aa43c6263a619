package handctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phobologic/repoorbit/internal/camera"
	"github.com/phobologic/repoorbit/internal/gesture"
)

// Sample is one animation frame of a replay.
type Sample struct {
	T     float64 `json:"t"`
	State string  `json:"state"`
	camera.Pose
}

// ReplayOptions controls Replay.
type ReplayOptions struct {
	// Interval is the animation frame interval. Zero means DefaultTickInterval.
	Interval time.Duration
	// Tail keeps ticking this long after the last frame.
	Tail   time.Duration
	Logger *slog.Logger
}

type nopRig struct{}

func (nopRig) SetControlsEnabled(bool) {}
func (nopRig) SetAutoRotate(bool)      {}
func (nopRig) FlyTo(camera.Pose)       {}
func (nopRig) SetPose(camera.Pose)     {}

// Replay reads JSON lines of recorded frames from r, timed by their t field
// in milliseconds, and writes one Sample per animation frame to w. It
// returns the number of frames read.
func Replay(ctx context.Context, r io.Reader, w io.Writer, opts ReplayOptions) (int, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := newSession(nopRig{}, opts.Logger.With("component", "replay"))
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	epoch := time.Unix(0, 0)

	var (
		next    time.Duration
		last    time.Duration
		started bool
		frames  int
	)
	tickUntil := func(until time.Duration) error {
		for next <= until {
			pose := s.tick(epoch.Add(next))
			sample := Sample{T: float64(next) / float64(time.Millisecond), State: s.cam.State().String(), Pose: pose}
			if err := enc.Encode(sample); err != nil {
				return fmt.Errorf("writing sample: %w", err)
			}
			next += opts.Interval
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		var f gesture.Frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return frames, fmt.Errorf("reading frame %d: %w", frames+1, err)
		}
		frames++

		at := time.Duration(f.T * float64(time.Millisecond))
		if !started {
			next, started = at, true
		}
		if at > last {
			last = at
		}
		if err := tickUntil(at - 1); err != nil {
			return frames, err
		}
		s.frame(f, epoch.Add(at))
	}

	if !started {
		return 0, nil
	}
	return frames, tickUntil(last + opts.Tail)
}
