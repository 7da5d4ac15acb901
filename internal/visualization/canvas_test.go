package visualization

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/paulmach/orb"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

func TestCanvas_DrawUpdateRecolor(t *testing.T) {
	c := NewCanvas(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 100)
	c.Draw(epidemic.DrawRequest{ID: 1, Position: orb.Point{10, 10}, Radius: 5, Color: epidemic.ColorGreen})

	c.Update(1, orb.Point{20, 30})
	c.Recolor(1, epidemic.ColorRed)
	c.Update(99, orb.Point{1, 1}) // unknown IDs are ignored

	got, ok := c.Shape(1)
	if !ok {
		t.Fatal("Shape(1) not found")
	}
	if got.Position != (orb.Point{20, 30}) || got.Color != epidemic.ColorRed {
		t.Errorf("Shape(1) = %+v", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCanvas_FrameRasterizesCircles(t *testing.T) {
	c := NewCanvas(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 100)
	c.Draw(epidemic.DrawRequest{ID: 0, Position: orb.Point{50, 50}, Radius: 10, Color: epidemic.ColorBlack})
	c.Draw(epidemic.DrawRequest{ID: 1, Position: orb.Point{10, 90}, Radius: 3, Color: epidemic.ColorRed})

	img := c.Frame()
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Fatalf("frame size = %v, want 100x100", img.Bounds())
	}
	if idx := img.ColorIndexAt(50, 50); idx != paletteIndex(epidemic.ColorBlack) {
		t.Errorf("center pixel index = %d, want black", idx)
	}
	// World y=90 is near the top of the image.
	if idx := img.ColorIndexAt(10, 10); idx != paletteIndex(epidemic.ColorRed) {
		t.Errorf("agent pixel index = %d, want red", idx)
	}
	if idx := img.ColorIndexAt(95, 95); idx != 0 {
		t.Errorf("corner pixel index = %d, want background", idx)
	}
}

func TestNewCanvas_KeepsAspectRatio(t *testing.T) {
	c := NewCanvas(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{200, 100}}, 400)
	w, h := c.Size()
	if w != 400 || h != 200 {
		t.Errorf("Size() = %dx%d, want 400x200", w, h)
	}
}

func TestGIFRecorder_Cadence(t *testing.T) {
	c := NewCanvas(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{50, 50}}, 50)
	c.Draw(epidemic.DrawRequest{ID: 1, Position: orb.Point{25, 25}, Radius: 2, Color: epidemic.ColorGreen})

	rec := NewGIFRecorder(c, 5, 4)
	for tick := 0; tick <= 12; tick++ {
		rec.Capture(tick)
	}
	rec.Final(12)
	rec.Final(12)
	// ticks 0, 5, 10 plus the final frame at 12
	if rec.Frames() != 4 {
		t.Fatalf("Frames() = %d, want 4", rec.Frames())
	}

	var buf bytes.Buffer
	if err := rec.Encode(&buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("DecodeAll() error = %v", err)
	}
	if len(decoded.Image) != 4 || decoded.Delay[0] != 4 {
		t.Errorf("decoded %d frames with delay %d", len(decoded.Image), decoded.Delay[0])
	}
}

func TestGIFRecorder_NoFrames(t *testing.T) {
	rec := NewGIFRecorder(NewCanvas(orb.Bound{Max: orb.Point{10, 10}}, 10), 1, 1)
	if err := rec.Encode(&bytes.Buffer{}); err == nil {
		t.Error("Encode() with no frames should fail")
	}
}

func TestCanvas_AsEngineRenderer(t *testing.T) {
	params := epidemic.DefaultParams()
	c := NewCanvas(params.Bounds, 140)
	policy := &epidemic.FixedPolicy{
		Positions: []orb.Point{{300, 350}, {400, 350}},
		States:    []epidemic.HealthState{epidemic.Infected, epidemic.Susceptible},
	}
	params.Beta = 1
	e := epidemic.New(params, epidemic.WithRenderer(c))
	if err := e.Initialize(2, orb.Point{350, 350}, policy); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	for !e.IsConverged() {
		if _, err := e.Tick(); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	if c.Len() != 3 {
		t.Fatalf("canvas has %d shapes, want attractor + 2 agents", c.Len())
	}
	for _, a := range e.Agents() {
		got, _ := c.Shape(a.ID)
		if got.Position != a.Position {
			t.Errorf("agent %d canvas position %v, engine %v", a.ID, got.Position, a.Position)
		}
		if got.Color != a.State.Color() {
			t.Errorf("agent %d canvas color %s, engine %s", a.ID, got.Color, a.State.Color())
		}
	}
}
