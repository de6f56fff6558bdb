package document

import (
	"image"
	"sync"

	"github.com/google/uuid"
)

// Document is the in-memory state of one editing session: its file path,
// ordered pages, the cached preview thumbnail and the backup policy for the
// next save.
//
// Document is shared between the editor and background save jobs. Every
// accessor below expects the caller to hold the document lock, either via
// Lock/Unlock or via WithLock.
type Document struct {
	mu sync.Mutex

	id                 string
	path               string
	pages              []*Page
	preview            *image.RGBA
	createBackupOnSave bool
	pdf                PDFSource
}

// New creates an empty document pointing at path.
func New(path string) *Document {
	return &Document{
		id:   uuid.NewString(),
		path: path,
	}
}

// ID returns the stable identifier of the document. It never changes and can
// be read without holding the lock.
func (d *Document) ID() string { return d.id }

func (d *Document) Lock()   { d.mu.Lock() }
func (d *Document) Unlock() { d.mu.Unlock() }

// WithLock runs fn with the document lock held and releases it when fn
// returns, including on panic.
func (d *Document) WithLock(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

func (d *Document) Path() string        { return d.path }
func (d *Document) SetPath(path string) { d.path = path }

func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the page at index i, or nil when i is out of range.
func (d *Document) Page(i int) *Page {
	if i < 0 || i >= len(d.pages) {
		return nil
	}
	return d.pages[i]
}

// Pages returns the page slice. The slice is owned by the document.
func (d *Document) Pages() []*Page { return d.pages }

func (d *Document) AddPage(p *Page) { d.pages = append(d.pages, p) }

// Preview returns the cached thumbnail, or nil when none is installed.
func (d *Document) Preview() *image.RGBA { return d.preview }

// SetPreview replaces the cached thumbnail. Passing nil clears it.
func (d *Document) SetPreview(img *image.RGBA) { d.preview = img }

func (d *Document) CreateBackupOnSave() bool { return d.createBackupOnSave }

func (d *Document) SetCreateBackupOnSave(v bool) { d.createBackupOnSave = v }

// PDF returns the background PDF attached to the document, if any.
func (d *Document) PDF() PDFSource { return d.pdf }

func (d *Document) SetPDF(src PDFSource) { d.pdf = src }

// DeletePage removes the page at index i. Out of range indexes are ignored.
func (d *Document) DeletePage(i int) {
	if i < 0 || i >= len(d.pages) {
		return
	}
	d.pages = append(d.pages[:i], d.pages[i+1:]...)
}
