package document

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoRaster is returned by a PDFSource that cannot rasterize pages.
var ErrNoRaster = errors.New("pdf page rasterization not available")

// PDFSource is the PDF a document's pages are annotated on top of.
type PDFSource interface {
	Filename() string
	PageCount() int
	// PageSize returns the size in points of the zero-based page.
	PageSize(page int) (width, height float64, ok bool)
	// RenderPage rasterizes the zero-based page into a width x height image.
	RenderPage(page, width, height int) (image.Image, error)
}

// PDFFile is a PDFSource read with pdfcpu. pdfcpu does not rasterize, so
// RenderPage delegates to an optional Rasterizer.
type PDFFile struct {
	filename   string
	sizes      [][2]float64
	Rasterizer func(filename string, page, width, height int) (image.Image, error)
}

// OpenPDF reads the page geometry of the PDF at filename.
func OpenPDF(filename string) (*PDFFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", filename, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	dims, err := api.PageDims(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions of %s: %w", filename, err)
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		abs = filename
	}
	p := &PDFFile{filename: abs, sizes: make([][2]float64, len(dims))}
	for i, d := range dims {
		p.sizes[i] = [2]float64{d.Width, d.Height}
	}
	return p, nil
}

func (p *PDFFile) Filename() string { return p.filename }

func (p *PDFFile) PageCount() int { return len(p.sizes) }

func (p *PDFFile) PageSize(page int) (float64, float64, bool) {
	if page < 0 || page >= len(p.sizes) {
		return 0, 0, false
	}
	return p.sizes[page][0], p.sizes[page][1], true
}

func (p *PDFFile) RenderPage(page, width, height int) (image.Image, error) {
	if p.Rasterizer == nil {
		return nil, ErrNoRaster
	}
	return p.Rasterizer(p.filename, page, width, height)
}

// NewFromPDF creates a document annotating src, one PDF-backed page per PDF
// page. The document path is the PDF path; saving strips the .pdf extension.
func NewFromPDF(path string, src PDFSource) *Document {
	doc := New(path)
	doc.pdf = src
	for i := 0; i < src.PageCount(); i++ {
		w, h, _ := src.PageSize(i)
		doc.pages = append(doc.pages, NewPDFPage(w, h, i))
	}
	return doc
}
