// Package xopp writes and reads the gzip-compressed XML note format.
package xopp

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/klauspost/compress/gzip"
)

const Creator = "xoppsave"

// Handler serializes a document. Prepare snapshots the document in memory,
// SaveTo writes the snapshot. Failures are reported through ErrorMessage
// rather than returned, so a caller can always record the attempted target.
type Handler struct {
	root         *xmlXournal
	errorMessage string
}

func NewHandler() *Handler {
	return &Handler{}
}

// ErrorMessage returns the last failure, or "" when the last call succeeded.
func (h *Handler) ErrorMessage() string { return h.errorMessage }

// Prepare converts doc into its XML tree. The caller must hold the document
// lock.
func (h *Handler) Prepare(doc *document.Document) {
	h.errorMessage = ""
	root := &xmlXournal{
		Creator:     Creator,
		FileVersion: fileVersion,
		Title:       title,
	}

	if prev := doc.Preview(); prev != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, prev); err != nil {
			h.errorMessage = fmt.Sprintf("could not encode preview: %v", err)
			return
		}
		root.Preview = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	pdfNamed := false
	for _, p := range doc.Pages() {
		xp := xmlPage{
			Width:  formatFloat(p.Width),
			Height: formatFloat(p.Height),
		}
		if p.Background.IsPDFPage() {
			xp.Background = xmlBackground{Type: "pdf", PageNo: p.Background.PDFPage + 1}
			if src := doc.PDF(); src != nil && !pdfNamed {
				xp.Background.Domain = "absolute"
				xp.Background.Filename = src.Filename()
				pdfNamed = true
			}
		} else {
			xp.Background = xmlBackground{
				Type:  "solid",
				Color: formatColor(p.Background.Color),
				Style: p.Background.Style,
			}
		}
		for _, l := range p.Layers {
			var xl xmlLayer
			for _, s := range l.Strokes {
				xl.Strokes = append(xl.Strokes, xmlStroke{
					Tool:   "pen",
					Color:  formatColor(s.Color),
					Width:  formatFloat(s.Width),
					Coords: formatCoords(s.Points),
				})
			}
			xp.Layers = append(xp.Layers, xl)
		}
		root.Pages = append(root.Pages, xp)
	}
	h.root = root
}

// SaveTo writes the prepared document to path. The file is written to a
// temporary sibling and renamed into place, so path is never left half
// written.
func (h *Handler) SaveTo(path string) {
	if h.errorMessage != "" {
		return
	}
	if h.root == nil {
		h.errorMessage = "nothing prepared to save"
		return
	}
	if err := writeAtomically(path, h.root); err != nil {
		h.errorMessage = err.Error()
	}
}

func writeAtomically(path string, root *xmlXournal) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(fileMode(path)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not set mode of %s: %w", path, err)
	}
	if err := encode(tmp, root); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not move file into place: %w", err)
	}
	return nil
}

// fileMode is the mode a save of path keeps: that of the existing file, or
// of the backup it was moved to, or 0644 for a new file.
func fileMode(path string) os.FileMode {
	for _, p := range []string{path, path + "~"} {
		if fi, err := os.Stat(p); err == nil {
			return fi.Mode().Perm()
		}
	}
	return 0o644
}

func encode(w io.Writer, root *xmlXournal) error {
	zw := gzip.NewWriter(w)
	if _, err := io.WriteString(zw, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(zw)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return err
	}
	return zw.Close()
}
