// Package geom holds the screen-space value types shared by windows and displays.
package geom

import "fmt"

// Point is a location in virtual-screen coordinates
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Rect is an edge-based rectangle. Right and Bottom are exclusive. The zero
// value is the empty rectangle.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// OffsetAndSize builds a rectangle from its top-left corner and dimensions
func OffsetAndSize(x, y, width, height int) Rect {
	return Rect{Left: x, Top: y, Right: x + width, Bottom: y + height}
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// TopLeft returns the rectangle origin
func (r Rect) TopLeft() Point { return Point{X: r.Left, Y: r.Top} }

// Size returns width and height packed as a point
func (r Rect) Size() Point { return Point{X: r.Width(), Y: r.Height()} }

// IsEmpty reports whether the rectangle encloses no area
func (r Rect) IsEmpty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Contains reports whether pt lies inside the rectangle
func (r Rect) Contains(pt Point) bool {
	return pt.X >= r.Left && pt.X < r.Right && pt.Y >= r.Top && pt.Y < r.Bottom
}

// Union returns the smallest rectangle enclosing both r and o. Empty operands
// are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

// Intersect returns the overlap of r and o, or the zero Rect when they do
// not overlap
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		Left:   max(r.Left, o.Left),
		Top:    max(r.Top, o.Top),
		Right:  min(r.Right, o.Right),
		Bottom: min(r.Bottom, o.Bottom),
	}
	if out.IsEmpty() {
		return Rect{}
	}
	return out
}

// CloseMatch reports whether every edge of a and b differs by at most threshold
func CloseMatch(a, b Rect, threshold int) bool {
	return abs(a.Left-b.Left) <= threshold &&
		abs(a.Top-b.Top) <= threshold &&
		abs(a.Right-b.Right) <= threshold &&
		abs(a.Bottom-b.Bottom) <= threshold
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", r.Left, r.Top, r.Width(), r.Height())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
