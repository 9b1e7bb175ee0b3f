package waveform

import (
	"sync"
)

// Source provides the current time-domain byte window for rendering.
// *analyzer.Analyzer satisfies it.
type Source interface {
	Active() bool
	WindowSize() int
	TimeDomainBytes(dst []byte) int
}

// Style describes how the curve is stroked. The glow is applied for the
// stroke only; frames are self-contained, so it never bleeds into the
// next clear.
type Style struct {
	Color      string  `json:"color"`
	LineWidth  float64 `json:"lineWidth"`
	GlowColor  string  `json:"glowColor"`
	GlowRadius float64 `json:"glowRadius"`
}

// DefaultStyle returns the stock waveform look.
func DefaultStyle() Style {
	return Style{
		Color:      "#38bdf8",
		LineWidth:  2,
		GlowColor:  "#38bdf8",
		GlowRadius: 15,
	}
}

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Curve is one quadratic segment: control point and end point.
type Curve struct {
	Ctrl Point `json:"ctrl"`
	End  Point `json:"end"`
}

// Path is a stroked curve starting at Start and chaining quadratic
// segments.
type Path struct {
	Start  Point   `json:"start"`
	Curves []Curve `json:"curves"`
}

// Frame is one complete redraw. Every frame implies clearing the canvas
// first; Path is nil while the source is inactive (the idle frame just
// clears).
type Frame struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Path   *Path   `json:"path,omitempty"`
	Style  Style   `json:"style"`
}

// Renderer builds frames from a sample source for a canvas of known
// size.
type Renderer struct {
	mu     sync.Mutex
	src    Source
	style  Style
	width  float64
	height float64
	buf    []byte
}

// NewRenderer creates a renderer reading from src. The canvas size
// defaults to 640x140 until SetSize is called.
func NewRenderer(src Source, style Style) *Renderer {
	size := 0
	if src != nil {
		size = src.WindowSize()
	}
	return &Renderer{
		src:    src,
		style:  style,
		width:  640,
		height: 140,
		buf:    make([]byte, size),
	}
}

// SetSize updates the target canvas dimensions. Values below 1 are
// clamped so slice-width division stays defined.
func (r *Renderer) SetSize(width, height float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	r.width = width
	r.height = height
}

// Frame produces the next frame: clear-only while the source is
// inactive, otherwise a smoothed curve across the full canvas width.
func (r *Renderer) Frame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := Frame{Width: r.width, Height: r.height, Style: r.style}
	if r.src == nil || !r.src.Active() {
		return f
	}

	n := r.src.TimeDomainBytes(r.buf)
	if n < 2 {
		return f
	}
	f.Path = buildPath(r.buf[:n], r.width, r.height)
	return f
}

// ClearFrame returns a frame that only erases the canvas, for the final
// redraw after a session ends.
func (r *Renderer) ClearFrame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Frame{Width: r.width, Height: r.height, Style: r.style}
}

// buildPath lays n samples across the canvas width and smooths them
// with quadratic interpolation: each segment's control point is the
// previous sample's position and it ends at the midpoint between the
// previous and current samples.
func buildPath(data []byte, width, height float64) *Path {
	sliceWidth := width / float64(len(data)-1)

	at := func(i int) Point {
		v := float64(data[i]) / 128
		return Point{
			X: float64(i) * sliceWidth,
			Y: v * height / 2,
		}
	}

	p := &Path{
		Start:  at(0),
		Curves: make([]Curve, 0, len(data)-1),
	}
	for i := 1; i < len(data); i++ {
		prev := at(i - 1)
		cur := at(i)
		p.Curves = append(p.Curves, Curve{
			Ctrl: prev,
			End:  Point{X: (prev.X + cur.X) / 2, Y: (prev.Y + cur.Y) / 2},
		})
	}
	return p
}

// Loop starts the repeating render task on s, delivering each frame to
// sink. The returned cancel stops the loop; no frame is delivered after
// it returns.
func Loop(s Scheduler, r *Renderer, sink func(Frame)) (cancel func()) {
	return s.Start(func() {
		sink(r.Frame())
	})
}
