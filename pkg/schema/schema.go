// Package schema models a document template as a serialized tree of typed
// blocks with absolute pixel positioning, plus global styles, paper size and
// orientation. The engine performs no layout: positions are pre-computed by
// the designer and the tree is rendered as-is.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/vello/vello/pkg/pagespec"
)

const maxContainerDepth = 8

// Schema is the serialized template: block tree + page geometry + defaults.
type Schema struct {
	Name        string  `json:"name,omitempty"`
	Paper       string  `json:"paper"`
	Orientation string  `json:"orientation"`
	Style       Style   `json:"style"`
	Blocks      []Block `json:"blocks"`
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Decode reads a schema document from r.
func Decode(r io.Reader) (*Schema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data)
}

// Page resolves the page geometry. Validate must have passed.
func (s *Schema) Page() pagespec.Spec {
	spec, err := pagespec.New(s.Paper, s.Orientation)
	if err != nil {
		spec, _ = pagespec.New("a4", "portrait")
	}
	return spec
}

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks page geometry, frames and per-kind payload constraints.
func (s *Schema) Validate() error {
	if _, err := pagespec.New(s.Paper, s.Orientation); err != nil {
		return err
	}
	if err := validateStyle(&s.Style, "schema"); err != nil {
		return err
	}
	for i := range s.Blocks {
		if err := validateBlock(&s.Blocks[i], 1); err != nil {
			return err
		}
	}
	return nil
}

func validateBlock(b *Block, depth int) error {
	where := b.ID
	if where == "" {
		where = string(b.Kind)
	}
	if b.Frame.W <= 0 || b.Frame.H <= 0 {
		return fmt.Errorf("block %s: frame size must be positive (got %gx%g)", where, b.Frame.W, b.Frame.H)
	}
	if b.Frame.X < 0 || b.Frame.Y < 0 {
		return fmt.Errorf("block %s: frame position must be non-negative", where)
	}
	if err := validateStyle(b.Style, where); err != nil {
		return err
	}
	switch b.Kind {
	case KindText, KindDivider, KindSpacer:
	case KindTable:
		if b.Table == nil || len(b.Table.Columns) == 0 {
			return fmt.Errorf("block %s: table requires at least one column", where)
		}
		for _, c := range b.Table.Columns {
			if c.Width <= 0 {
				return fmt.Errorf("block %s: column width must be positive", where)
			}
		}
		for ri, row := range b.Table.Rows {
			if len(row) > len(b.Table.Columns) {
				return fmt.Errorf("block %s: row %d has %d cells for %d columns", where, ri, len(row), len(b.Table.Columns))
			}
		}
	case KindImage:
		if b.Image == nil || strings.TrimSpace(b.Image.Src) == "" {
			return fmt.Errorf("block %s: image src is required", where)
		}
		switch b.Image.Fit {
		case "", "contain", "stretch":
		default:
			return fmt.Errorf("block %s: unsupported image fit %q", where, b.Image.Fit)
		}
	case KindContainer:
		if depth >= maxContainerDepth {
			return fmt.Errorf("block %s: container nesting exceeds depth %d", where, maxContainerDepth)
		}
		for i := range b.Children {
			if err := validateBlock(&b.Children[i], depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("block %s: unknown kind %q", where, b.Kind)
	}
	return nil
}

func validateStyle(st *Style, where string) error {
	if st == nil {
		return nil
	}
	for _, c := range []string{st.Color, st.FillColor, st.BorderColor} {
		if c != "" && !colorRe.MatchString(c) {
			return fmt.Errorf("%s: invalid color %q (want #RRGGBB)", where, c)
		}
	}
	switch st.Align {
	case "", "left", "center", "right":
	default:
		return fmt.Errorf("%s: invalid align %q", where, st.Align)
	}
	return nil
}

// Clone returns a deep copy. Substitution operates on clones so the stored
// template is never mutated.
func (s *Schema) Clone() *Schema {
	out := *s
	out.Blocks = make([]Block, len(s.Blocks))
	for i := range s.Blocks {
		out.Blocks[i] = s.Blocks[i].Clone()
	}
	return &out
}

// EffectiveStyle merges the schema default style with a block override.
func (s *Schema) EffectiveStyle(b *Block) Style {
	base := Style{
		FontFamily: "helvetica",
		FontSizePx: 14,
		Color:      "#000000",
		Align:      "left",
		LineHeight: 1.25,
	}
	base = base.Merge(&s.Style)
	return base.Merge(b.Style)
}

// Walk visits every block depth-first, containers before their children.
func (s *Schema) Walk(fn func(b *Block) error) error {
	var rec func(bs []Block) error
	rec = func(bs []Block) error {
		for i := range bs {
			if err := fn(&bs[i]); err != nil {
				return err
			}
			if bs[i].Kind == KindContainer {
				if err := rec(bs[i].Children); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return rec(s.Blocks)
}
