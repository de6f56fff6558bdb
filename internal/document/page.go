package document

import "image/color"

// Standard page sizes in points.
const (
	A4Width  = 595.275590551
	A4Height = 841.889763778
)

type BackgroundKind int

const (
	BackgroundSolid BackgroundKind = iota
	BackgroundPDF
)

// Ruling styles for solid backgrounds.
const (
	StylePlain = "plain"
	StyleLined = "lined"
	StyleGraph = "graph"
)

// Background describes what is painted under the page content. PDFPage is a
// zero-based page index into the document's PDF and is only meaningful for
// BackgroundPDF.
type Background struct {
	Kind    BackgroundKind
	Color   color.RGBA
	Style   string
	PDFPage int
}

func (b Background) IsPDFPage() bool { return b.Kind == BackgroundPDF }

type Point struct {
	X, Y float64
}

type Stroke struct {
	Color  color.RGBA
	Width  float64
	Points []Point
}

type Layer struct {
	Strokes []Stroke
}

type Page struct {
	Width      float64
	Height     float64
	Background Background
	Layers     []*Layer
}

// NewPage returns a plain white page with a single empty layer.
func NewPage(width, height float64) *Page {
	return &Page{
		Width:  width,
		Height: height,
		Background: Background{
			Kind:  BackgroundSolid,
			Color: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
			Style: StylePlain,
		},
		Layers: []*Layer{{}},
	}
}

// NewPDFPage returns a page backed by the given zero-based PDF page.
func NewPDFPage(width, height float64, pdfPage int) *Page {
	p := NewPage(width, height)
	p.Background = Background{Kind: BackgroundPDF, PDFPage: pdfPage}
	return p
}

// AddStroke appends s to the top layer, creating one if the page has none.
func (p *Page) AddStroke(s Stroke) {
	if len(p.Layers) == 0 {
		p.Layers = append(p.Layers, &Layer{})
	}
	top := p.Layers[len(p.Layers)-1]
	top.Strokes = append(top.Strokes, s)
}
