package l2frames

import (
	"fmt"
	"image"
)

// ROI is a half-open rectangle [MinX,MaxX)×[MinY,MaxY) in sensor pixels.
type ROI struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// FullROI covers a whole w×h frame.
func FullROI(w, h int) ROI { return ROI{MaxX: w, MaxY: h} }

// ROIFromRect converts an image.Rectangle.
func ROIFromRect(r image.Rectangle) ROI {
	return ROI{MinX: r.Min.X, MinY: r.Min.Y, MaxX: r.Max.X, MaxY: r.Max.Y}
}

// Validate enforces 0 ≤ MinX < MaxX ≤ w and 0 ≤ MinY < MaxY ≤ h.
func (r ROI) Validate(w, h int) error {
	if r.MinX < 0 || r.MinY < 0 {
		return fmt.Errorf("roi %v has negative origin", r)
	}
	if r.MinX >= r.MaxX || r.MinY >= r.MaxY {
		return fmt.Errorf("roi %v is empty", r)
	}
	if r.MaxX > w || r.MaxY > h {
		return fmt.Errorf("roi %v exceeds frame %dx%d", r, w, h)
	}
	return nil
}

// Contains reports whether (x, y) lies inside the ROI.
func (r ROI) Contains(x, y int) bool {
	return x >= r.MinX && x < r.MaxX && y >= r.MinY && y < r.MaxY
}

func (r ROI) Dx() int { return r.MaxX - r.MinX }
func (r ROI) Dy() int { return r.MaxY - r.MinY }

// Rect converts to an image.Rectangle.
func (r ROI) Rect() image.Rectangle { return image.Rect(r.MinX, r.MinY, r.MaxX, r.MaxY) }

func (r ROI) String() string {
	return fmt.Sprintf("[%d,%d)-[%d,%d)", r.MinX, r.MinY, r.MaxX, r.MaxY)
}
