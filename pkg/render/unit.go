package render

// Designer coordinates are CSS pixels at 96 dpi; PDF geometry is points at
// 72 dpi. The ratio is exactly 3/4.

// PxToPt converts 96-dpi pixels to PDF points.
func PxToPt(px float64) float64 { return px * 3 / 4 }

// PtToPx converts PDF points to 96-dpi pixels.
func PtToPx(pt float64) float64 { return pt * 4 / 3 }
