package xopp

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/klauspost/compress/gzip"
)

// Load reads a document written by Handler. Previews are not restored; they
// are regenerated on the next save.
func Load(path string) (*document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
	}
	defer zr.Close()

	var root xmlXournal
	if err := xml.NewDecoder(zr).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	doc := document.New(path)
	for i, xp := range root.Pages {
		p, err := decodePage(xp)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		doc.AddPage(p)
		if xp.Background.Filename != "" && doc.PDF() == nil {
			src, err := document.OpenPDF(xp.Background.Filename)
			if err != nil {
				slog.Warn("Could not open background pdf.", "filename", xp.Background.Filename, "error", err)
				continue
			}
			doc.SetPDF(src)
		}
	}
	return doc, nil
}

func decodePage(xp xmlPage) (*document.Page, error) {
	w, err := parseFloat(xp.Width)
	if err != nil {
		return nil, fmt.Errorf("invalid width: %w", err)
	}
	h, err := parseFloat(xp.Height)
	if err != nil {
		return nil, fmt.Errorf("invalid height: %w", err)
	}

	var p *document.Page
	switch xp.Background.Type {
	case "pdf":
		p = document.NewPDFPage(w, h, max(xp.Background.PageNo-1, 0))
	default:
		p = document.NewPage(w, h)
		if xp.Background.Color != "" {
			c, err := parseColor(xp.Background.Color)
			if err != nil {
				return nil, err
			}
			p.Background.Color = c
		}
		if xp.Background.Style != "" {
			p.Background.Style = xp.Background.Style
		}
	}

	p.Layers = p.Layers[:0]
	for _, xl := range xp.Layers {
		l := &document.Layer{}
		for _, xs := range xl.Strokes {
			c, err := parseColor(xs.Color)
			if err != nil {
				return nil, err
			}
			width, err := parseFloat(xs.Width)
			if err != nil {
				return nil, fmt.Errorf("invalid stroke width: %w", err)
			}
			points, err := parseCoords(xs.Coords)
			if err != nil {
				return nil, err
			}
			l.Strokes = append(l.Strokes, document.Stroke{Color: c, Width: width, Points: points})
		}
		p.Layers = append(p.Layers, l)
	}
	if len(p.Layers) == 0 {
		p.Layers = append(p.Layers, &document.Layer{})
	}
	return p, nil
}
