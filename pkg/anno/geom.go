package anno

import (
	"encoding/json"
	"fmt"

	"github.com/chewxy/math32"
)

// Box is a normalized bounding box [x0,y0,x1,y1], each coordinate in 0..1,
// independent of image resolution. On the wire it is a 4-element array,
// which is how vision models reply.
type Box struct {
	X0 float32
	Y0 float32
	X1 float32
	Y1 float32
}

func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float32{b.X0, b.Y0, b.X1, b.Y1})
}

func (b *Box) UnmarshalJSON(raw []byte) error {
	var arr []float32
	if err := json.Unmarshal(raw, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("Bounding box must have 4 elements, not %v", len(arr))
	}
	b.X0, b.Y0, b.X1, b.Y1 = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Clamped returns the box with every coordinate clamped into 0..1.
func (b Box) Clamped() Box {
	clamp := func(v float32) float32 {
		return math32.Min(1, math32.Max(0, v))
	}
	return Box{
		X0: clamp(b.X0),
		Y0: clamp(b.Y0),
		X1: clamp(b.X1),
		Y1: clamp(b.Y1),
	}
}

// IsValid returns true if the box has positive area after clamping.
func (b Box) IsValid() bool {
	c := b.Clamped()
	return c.X0 < c.X1 && c.Y0 < c.Y1
}

// ToRect converts the box to pixel space. A single rounding rule
// (half away from zero) is used for every coordinate, so repeated exports
// of the same box can never drift by a pixel.
func (b Box) ToRect(width, height int) Rect {
	x := math32.Round(b.X0 * float32(width))
	y := math32.Round(b.Y0 * float32(height))
	w := math32.Round((b.X1 - b.X0) * float32(width))
	h := math32.Round((b.Y1 - b.Y0) * float32(height))
	return Rect{
		X:      int(x),
		Y:      int(y),
		Width:  int(w),
		Height: int(h),
	}
}

// Normalize enforces the geometry invariants on a reconciled annotation:
//   - Present=false forces BBox=nil, whatever the model supplied.
//   - A malformed box (zero area after clamping, or inverted) is dropped,
//     but Present and Confidence are left alone. A missing box is not
//     evidence of a missing object.
func Normalize(a Annotation) Annotation {
	if !a.Present {
		a.BBox = nil
		return a
	}
	if a.BBox != nil {
		if !a.BBox.IsValid() {
			a.BBox = nil
		} else {
			c := a.BBox.Clamped()
			a.BBox = &c
		}
	}
	return a
}

// Rect is a bounding box in pixel space.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Area() int {
	return r.Width * r.Height
}
