package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates block payloads in the serialized tree.
type Kind string

const (
	KindText      Kind = "text"
	KindTable     Kind = "table"
	KindImage     Kind = "image"
	KindContainer Kind = "container"
	KindDivider   Kind = "divider"
	KindSpacer    Kind = "spacer"
)

// Frame is an absolute pixel rectangle. X/Y are relative to the page origin,
// or to the parent container origin for nested blocks.
type Frame struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Style carries text/border appearance. The zero value means "inherit".
type Style struct {
	FontFamily    string  `json:"font_family,omitempty"`
	FontSizePx    float64 `json:"font_size_px,omitempty"`
	Bold          bool    `json:"bold,omitempty"`
	Italic        bool    `json:"italic,omitempty"`
	Color         string  `json:"color,omitempty"`
	FillColor     string  `json:"fill_color,omitempty"`
	BorderColor   string  `json:"border_color,omitempty"`
	BorderWidthPx float64 `json:"border_width_px,omitempty"`
	Align         string  `json:"align,omitempty"` // left | center | right
	LineHeight    float64 `json:"line_height,omitempty"`
	PaddingPx     float64 `json:"padding_px,omitempty"`
}

// Merge returns base with non-zero fields of over applied on top.
func (base Style) Merge(over *Style) Style {
	if over == nil {
		return base
	}
	out := base
	if over.FontFamily != "" {
		out.FontFamily = over.FontFamily
	}
	if over.FontSizePx > 0 {
		out.FontSizePx = over.FontSizePx
	}
	if over.Bold {
		out.Bold = true
	}
	if over.Italic {
		out.Italic = true
	}
	if over.Color != "" {
		out.Color = over.Color
	}
	if over.FillColor != "" {
		out.FillColor = over.FillColor
	}
	if over.BorderColor != "" {
		out.BorderColor = over.BorderColor
	}
	if over.BorderWidthPx > 0 {
		out.BorderWidthPx = over.BorderWidthPx
	}
	if over.Align != "" {
		out.Align = over.Align
	}
	if over.LineHeight > 0 {
		out.LineHeight = over.LineHeight
	}
	if over.PaddingPx > 0 {
		out.PaddingPx = over.PaddingPx
	}
	return out
}

// Column defines one table column. Width is a relative weight; widths are
// normalized against the block frame width at render time.
type Column struct {
	Label string  `json:"label"`
	Width float64 `json:"width"`
}

type TablePayload struct {
	Columns    []Column   `json:"columns"`
	Rows       [][]string `json:"rows"`
	HeaderFill string     `json:"header_fill,omitempty"`
	ShowHeader bool       `json:"show_header"`
}

type ImagePayload struct {
	Src string `json:"src"`           // http(s) URL or data: URI
	Fit string `json:"fit,omitempty"` // contain (default) | stretch
}

// Block is one typed node of the layout tree. Exactly the payload matching
// Kind is set; the rest are nil.
type Block struct {
	ID    string
	Kind  Kind
	Frame Frame
	Style *Style

	Text     string
	Table    *TablePayload
	Image    *ImagePayload
	Children []Block
}

// blockWire is the flat JSON shape: payload fields live beside the
// discriminator instead of being nested per kind.
type blockWire struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Frame Frame  `json:"frame"`
	Style *Style `json:"style,omitempty"`

	Content  string          `json:"content,omitempty"`
	Columns  []Column        `json:"columns,omitempty"`
	Rows     [][]string      `json:"rows,omitempty"`
	Header   *bool           `json:"show_header,omitempty"`
	HdrFill  string          `json:"header_fill,omitempty"`
	Src      string          `json:"src,omitempty"`
	Fit      string          `json:"fit,omitempty"`
	Children json.RawMessage `json:"children,omitempty"`
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(w.Type)))
	out := Block{ID: w.ID, Kind: kind, Frame: w.Frame, Style: w.Style}
	switch kind {
	case KindText:
		out.Text = w.Content
	case KindTable:
		showHeader := true
		if w.Header != nil {
			showHeader = *w.Header
		}
		out.Table = &TablePayload{
			Columns:    w.Columns,
			Rows:       w.Rows,
			HeaderFill: w.HdrFill,
			ShowHeader: showHeader,
		}
	case KindImage:
		out.Image = &ImagePayload{Src: w.Src, Fit: w.Fit}
	case KindContainer:
		if len(w.Children) > 0 {
			if err := json.Unmarshal(w.Children, &out.Children); err != nil {
				return fmt.Errorf("container children: %w", err)
			}
		}
	case KindDivider, KindSpacer:
		// geometry only
	default:
		return fmt.Errorf("unknown block type: %q", w.Type)
	}
	*b = out
	return nil
}

func (b Block) MarshalJSON() ([]byte, error) {
	w := blockWire{ID: b.ID, Type: string(b.Kind), Frame: b.Frame, Style: b.Style}
	switch b.Kind {
	case KindText:
		w.Content = b.Text
	case KindTable:
		if b.Table != nil {
			w.Columns = b.Table.Columns
			w.Rows = b.Table.Rows
			w.HdrFill = b.Table.HeaderFill
			sh := b.Table.ShowHeader
			w.Header = &sh
		}
	case KindImage:
		if b.Image != nil {
			w.Src = b.Image.Src
			w.Fit = b.Image.Fit
		}
	case KindContainer:
		if b.Children != nil {
			raw, err := json.Marshal(b.Children)
			if err != nil {
				return nil, err
			}
			w.Children = raw
		}
	}
	return json.Marshal(w)
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := b
	if b.Style != nil {
		st := *b.Style
		out.Style = &st
	}
	if b.Table != nil {
		tp := *b.Table
		tp.Columns = append([]Column(nil), b.Table.Columns...)
		tp.Rows = make([][]string, len(b.Table.Rows))
		for i, row := range b.Table.Rows {
			tp.Rows[i] = append([]string(nil), row...)
		}
		out.Table = &tp
	}
	if b.Image != nil {
		img := *b.Image
		out.Image = &img
	}
	if b.Children != nil {
		out.Children = make([]Block, len(b.Children))
		for i := range b.Children {
			out.Children[i] = b.Children[i].Clone()
		}
	}
	return out
}
