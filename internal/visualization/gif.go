package visualization

import (
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"
	"path/filepath"
)

// GIFRecorder captures canvas frames at a fixed tick cadence and encodes
// them as an animated GIF.
type GIFRecorder struct {
	canvas *Canvas
	every  int
	delay  int
	frames []*image.Paletted
	last   int
}

// NewGIFRecorder records one frame every `every` ticks, shown for delay
// hundredths of a second.
func NewGIFRecorder(c *Canvas, every, delay int) *GIFRecorder {
	if every < 1 {
		every = 1
	}
	return &GIFRecorder{canvas: c, every: every, delay: delay, last: -1}
}

// Capture records a frame when tick falls on the cadence. Tick 0 is the
// initial layout.
func (g *GIFRecorder) Capture(tick int) {
	if tick%g.every != 0 {
		return
	}
	g.capture(tick)
}

// Final records the closing frame unless tick was already captured.
func (g *GIFRecorder) Final(tick int) {
	g.capture(tick)
}

func (g *GIFRecorder) capture(tick int) {
	if tick == g.last {
		return
	}
	g.frames = append(g.frames, g.canvas.Frame())
	g.last = tick
}

// Frames returns the number of captured frames.
func (g *GIFRecorder) Frames() int { return len(g.frames) }

// Encode writes the animation to w.
func (g *GIFRecorder) Encode(w io.Writer) error {
	if len(g.frames) == 0 {
		return fmt.Errorf("no frames captured")
	}
	anim := &gif.GIF{
		Image: g.frames,
		Delay: make([]int, len(g.frames)),
	}
	for i := range anim.Delay {
		anim.Delay[i] = g.delay
	}
	if err := gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("encoding gif: %w", err)
	}
	return nil
}

// WriteFile encodes the animation to path, creating parent directories.
func (g *GIFRecorder) WriteFile(path string) error {
	return writeFile(path, g.Encode)
}

func writeFile(path string, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
