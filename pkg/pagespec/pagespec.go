package pagespec

import (
	"fmt"
	"strings"
)

// PaperSize identifies a supported fixed page format.
// Dimensions are defined at 96 dpi (CSS pixel) for the designer surface and
// in PDF points for the renderer.
type PaperSize string

const (
	PaperA4     PaperSize = "a4"
	PaperA5     PaperSize = "a5"
	PaperLetter PaperSize = "letter"
	PaperLegal  PaperSize = "legal"
)

func ParsePaperSize(v string) (PaperSize, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "a4", "":
		return PaperA4, nil
	case "a5":
		return PaperA5, nil
	case "letter", "us-letter", "usletter":
		return PaperLetter, nil
	case "legal", "us-legal", "uslegal":
		return PaperLegal, nil
	default:
		return "", fmt.Errorf("unsupported paper size: %q (supported: a4/a5/letter/legal)", v)
	}
}

func (p PaperSize) String() string { return string(p) }

// Orientation of the page. Landscape swaps the page axes.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

func ParseOrientation(v string) (Orientation, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "portrait", "p", "":
		return Portrait, nil
	case "landscape", "l":
		return Landscape, nil
	default:
		return "", fmt.Errorf("unsupported orientation: %q (supported: portrait/landscape)", v)
	}
}

func (o Orientation) String() string { return string(o) }

// dimensions in px at 96 dpi, portrait.
var paperPx = map[PaperSize][2]float64{
	PaperA4:     {794, 1123},
	PaperA5:     {559, 794},
	PaperLetter: {816, 1056},
	PaperLegal:  {816, 1344},
}

// Spec is a resolved page geometry for one document.
type Spec struct {
	Paper       PaperSize
	Orientation Orientation
}

func New(paper, orientation string) (Spec, error) {
	p, err := ParsePaperSize(paper)
	if err != nil {
		return Spec{}, err
	}
	o, err := ParseOrientation(orientation)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Paper: p, Orientation: o}, nil
}

// SizePx returns page width/height in px at 96 dpi, orientation applied.
func (s Spec) SizePx() (w, h float64) {
	d, ok := paperPx[s.Paper]
	if !ok {
		d = paperPx[PaperA4]
	}
	if s.Orientation == Landscape {
		return d[1], d[0]
	}
	return d[0], d[1]
}

// SizePt returns page width/height in PDF points (1 px = 0.75 pt at 96 dpi).
func (s Spec) SizePt() (w, h float64) {
	pw, ph := s.SizePx()
	return pw * 3 / 4, ph * 3 / 4
}
