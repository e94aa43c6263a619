package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/phobologic/repoorbit/internal/camera"
	"github.com/phobologic/repoorbit/internal/config"
	"github.com/phobologic/repoorbit/internal/handctl"
	"github.com/phobologic/repoorbit/internal/publish"
)

// runReplay implements `repoorbit replay`, which feeds recorded hand
// landmark frames through the gesture interpreter and camera controller and
// prints the resulting camera poses.
func runReplay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("repoorbit replay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		in       string
		out      string
		interval time.Duration
		tail     time.Duration
	)
	fs.StringVar(&in, "in", "-", `recorded frames as JSON lines ("-" for stdin)`)
	fs.StringVar(&out, "out", "-", `pose output ("-" for stdout)`)
	fs.DurationVar(&interval, "interval", handctl.DefaultTickInterval, "animation frame interval")
	fs.DurationVar(&tail, "tail", camera.IdleTimeout+500*time.Millisecond, "keep animating this long after the last frame")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: repoorbit replay [flags]

Replay recorded hand landmark frames through the gesture camera controller.
Each input line is a JSON object {"t": <ms>, "hands": [...]}; each output
line is the camera pose for one animation frame.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("opening frames: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	// S3 settings come from the environment, as for graph output.
	opts, err := config.Load("")
	if err != nil {
		return err
	}
	sink, err := publish.Open(out, "json", stdout, opts.S3)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	n, err := handctl.Replay(ctx, bufio.NewReader(r), &buf, handctl.ReplayOptions{
		Interval: interval,
		Tail:     tail,
		Logger:   newLogger(opts.LogFormat, stderr),
	})
	if err != nil {
		return err
	}
	if err := sink.Write(ctx, buf.Bytes()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stderr, "replayed %d frames to %s\n", n, sink)
	return nil
}
