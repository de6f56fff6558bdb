// Package preview renders the small thumbnail stored alongside a saved
// document.
package preview

import (
	"errors"
	"image"
	"image/draw"
	"log/slog"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/gogpu/gg"
)

// Size is the length in pixels of the longer preview edge.
const Size = 128

const rulingSpacing = 24.0

var rulingColor = gg.Hex("#bdbdff")

// Dimensions returns the zoom mapping the longer edge of a width x height
// page onto Size, and the resulting pixel size of the preview.
func Dimensions(width, height float64) (zoom float64, w, h int) {
	if width < height {
		zoom = Size / height
	} else {
		zoom = Size / width
	}
	w = max(int(width*zoom), 1)
	h = max(int(height*zoom), 1)
	return zoom, w, h
}

// Update renders the first page of doc and installs it as the document
// preview, or clears the preview when the document has no pages. The
// document lock is held for the whole operation.
func Update(doc *document.Document) {
	doc.Lock()
	defer doc.Unlock()

	if doc.PageCount() == 0 {
		doc.SetPreview(nil)
		return
	}
	doc.SetPreview(Render(doc.Page(0), doc.PDF()))
}

// Render draws page, including its PDF background when pdf can rasterize it,
// into a freshly allocated thumbnail.
func Render(page *document.Page, pdf document.PDFSource) *image.RGBA {
	zoom, w, h := Dimensions(page.Width, page.Height)

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.Scale(zoom, zoom)

	if page.Background.IsPDFPage() {
		drawPDFBackground(dc, page, pdf, w, h)
	} else {
		drawSolidBackground(dc, page)
	}
	for _, layer := range page.Layers {
		for _, s := range layer.Strokes {
			drawStroke(dc, s)
		}
	}

	return toRGBA(dc.Image())
}

func drawPDFBackground(dc *gg.Context, page *document.Page, pdf document.PDFSource, w, h int) {
	if pdf == nil {
		return
	}
	img, err := pdf.RenderPage(page.Background.PDFPage, w, h)
	if err != nil {
		if !errors.Is(err, document.ErrNoRaster) {
			slog.Warn("Could not render pdf background for preview.", "pdfPage", page.Background.PDFPage, "error", err)
		}
		return
	}
	if img == nil {
		return
	}
	dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		DstWidth:  page.Width,
		DstHeight: page.Height,
	})
}

func drawSolidBackground(dc *gg.Context, page *document.Page) {
	bg := page.Background
	dc.SetColor(bg.Color)
	dc.DrawRectangle(0, 0, page.Width, page.Height)
	if err := dc.Fill(); err != nil {
		slog.Debug("Preview background fill failed.", "error", err)
	}

	if bg.Style != document.StyleLined && bg.Style != document.StyleGraph {
		return
	}
	dc.SetColor(rulingColor.Color())
	dc.SetLineWidth(0.5)
	for y := rulingSpacing; y < page.Height; y += rulingSpacing {
		dc.DrawLine(0, y, page.Width, y)
	}
	if bg.Style == document.StyleGraph {
		for x := rulingSpacing; x < page.Width; x += rulingSpacing {
			dc.DrawLine(x, 0, x, page.Height)
		}
	}
	if err := dc.Stroke(); err != nil {
		slog.Debug("Preview ruling stroke failed.", "error", err)
	}
}

func drawStroke(dc *gg.Context, s document.Stroke) {
	if len(s.Points) < 2 {
		return
	}
	dc.SetColor(s.Color)
	dc.SetLineWidth(s.Width)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.MoveTo(s.Points[0].X, s.Points[0].Y)
	for _, p := range s.Points[1:] {
		dc.LineTo(p.X, p.Y)
	}
	if err := dc.Stroke(); err != nil {
		slog.Debug("Preview stroke failed.", "error", err)
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
