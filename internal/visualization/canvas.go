package visualization

import (
	"image"
	"image/color"
	"math"

	"github.com/paulmach/orb"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// palette holds every color a frame can contain. Index 0 is the background.
var palette = color.Palette{
	color.RGBA{0xff, 0xff, 0xff, 0xff}, // background
	color.RGBA{0x00, 0x00, 0x00, 0xff}, // black
	color.RGBA{0x2e, 0xa0, 0x43, 0xff}, // green
	color.RGBA{0xd7, 0x26, 0x1e, 0xff}, // red
	color.RGBA{0xf5, 0x8a, 0x07, 0xff}, // orange
	color.RGBA{0x88, 0x88, 0x88, 0xff}, // gray
}

func paletteIndex(c epidemic.Color) uint8 {
	switch c {
	case epidemic.ColorBlack:
		return 1
	case epidemic.ColorGreen:
		return 2
	case epidemic.ColorRed:
		return 3
	case epidemic.ColorOrange:
		return 4
	default:
		return 5
	}
}

type shape struct {
	pos    orb.Point
	radius float64
	color  epidemic.Color
}

// Canvas is an in-memory Renderer. It keeps the latest position and color
// of every drawn circle and rasterizes them on demand.
type Canvas struct {
	world  orb.Bound
	width  int
	height int
	shapes map[int]*shape
	order  []int
}

// NewCanvas creates a canvas mapping world onto an image whose longer side
// is size pixels.
func NewCanvas(world orb.Bound, size int) *Canvas {
	if size < 1 {
		size = 1
	}
	w, h := world.Right()-world.Left(), world.Top()-world.Bottom()
	width, height := size, size
	if w > 0 && h > 0 {
		if w >= h {
			height = int(math.Max(1, math.Round(float64(size)*h/w)))
		} else {
			width = int(math.Max(1, math.Round(float64(size)*w/h)))
		}
	}
	return &Canvas{
		world:  world,
		width:  width,
		height: height,
		shapes: make(map[int]*shape),
	}
}

// Draw registers a circle. Redrawing an existing ID replaces it.
func (c *Canvas) Draw(req epidemic.DrawRequest) {
	if _, ok := c.shapes[req.ID]; !ok {
		c.order = append(c.order, req.ID)
	}
	c.shapes[req.ID] = &shape{pos: req.Position, radius: req.Radius, color: req.Color}
}

// Update moves a circle. Unknown IDs are ignored.
func (c *Canvas) Update(id int, pos orb.Point) {
	if s, ok := c.shapes[id]; ok {
		s.pos = pos
	}
}

// Recolor changes a circle's color. Unknown IDs are ignored.
func (c *Canvas) Recolor(id int, col epidemic.Color) {
	if s, ok := c.shapes[id]; ok {
		s.color = col
	}
}

// Shape returns the current state of a circle.
func (c *Canvas) Shape(id int) (epidemic.DrawRequest, bool) {
	s, ok := c.shapes[id]
	if !ok {
		return epidemic.DrawRequest{}, false
	}
	return epidemic.DrawRequest{ID: id, Position: s.pos, Radius: s.radius, Color: s.color}, true
}

// Len returns the number of circles drawn.
func (c *Canvas) Len() int { return len(c.order) }

// Size returns the frame dimensions in pixels.
func (c *Canvas) Size() (int, int) { return c.width, c.height }

// Frame rasterizes the canvas. Circles are painted in draw order, so the
// attractor stays underneath the agents that reach it.
func (c *Canvas) Frame() *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, c.width, c.height), palette)
	scale := c.scale()
	for _, id := range c.order {
		s := c.shapes[id]
		cx, cy := c.toPixel(s.pos)
		r := math.Max(s.radius*scale, 0.5)
		fillCircle(img, cx, cy, r, paletteIndex(s.color))
	}
	return img
}

func (c *Canvas) scale() float64 {
	w := c.world.Right() - c.world.Left()
	if w <= 0 {
		return 1
	}
	return float64(c.width) / w
}

// toPixel maps world coordinates to image coordinates with y pointing down.
func (c *Canvas) toPixel(p orb.Point) (float64, float64) {
	s := c.scale()
	return (p.X() - c.world.Left()) * s, (c.world.Top() - p.Y()) * s
}

func fillCircle(img *image.Paletted, cx, cy, r float64, idx uint8) {
	b := img.Bounds()
	minX := int(math.Max(float64(b.Min.X), math.Floor(cx-r)))
	maxX := int(math.Min(float64(b.Max.X-1), math.Ceil(cx+r)))
	minY := int(math.Max(float64(b.Min.Y), math.Floor(cy-r)))
	maxY := int(math.Min(float64(b.Max.Y-1), math.Ceil(cy+r)))
	r2 := r * r
	for y := minY; y <= maxY; y++ {
		dy := float64(y) + 0.5 - cy
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy <= r2 {
				img.SetColorIndex(x, y, idx)
			}
		}
	}
}
