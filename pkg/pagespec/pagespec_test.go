package pagespec

import "testing"

func TestParsePaperSize(t *testing.T) {
	for in, want := range map[string]PaperSize{
		"A4":        PaperA4,
		"":          PaperA4,
		"Letter":    PaperLetter,
		"us-letter": PaperLetter,
		"legal":     PaperLegal,
		"a5":        PaperA5,
	} {
		got, err := ParsePaperSize(in)
		if err != nil {
			t.Fatalf("ParsePaperSize(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParsePaperSize(%q) got=%s want=%s", in, got, want)
		}
	}
	if _, err := ParsePaperSize("tabloid"); err == nil {
		t.Fatal("expected error for unsupported paper size")
	}
}

func TestLandscapeSwapsAxes(t *testing.T) {
	p, _ := New("a4", "portrait")
	l, _ := New("a4", "landscape")
	pw, ph := p.SizePx()
	lw, lh := l.SizePx()
	if lw != ph || lh != pw {
		t.Fatalf("landscape did not swap axes: portrait=%vx%v landscape=%vx%v", pw, ph, lw, lh)
	}
}

func TestSizePtIsThreeQuarters(t *testing.T) {
	s, _ := New("letter", "")
	pw, ph := s.SizePx()
	ptw, pth := s.SizePt()
	if ptw != pw*3/4 || pth != ph*3/4 {
		t.Fatalf("pt conversion mismatch: px=%vx%v pt=%vx%v", pw, ph, ptw, pth)
	}
}
