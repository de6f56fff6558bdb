package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/xopp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSerializer writes content to the target unless failWith is set.
type fakeSerializer struct {
	content  string
	failWith string

	prepareCalls int
	saveCalls    int
	savedTo      string
	message      string
}

func (f *fakeSerializer) Prepare(*document.Document) { f.prepareCalls++ }

func (f *fakeSerializer) SaveTo(path string) {
	f.saveCalls++
	f.savedTo = path
	if f.failWith != "" {
		f.message = f.failWith
		return
	}
	if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
		f.message = err.Error()
	}
}

func (f *fakeSerializer) ErrorMessage() string { return f.message }

func factory(s *fakeSerializer) func() Serializer {
	return func() Serializer { return s }
}

// removeFailFS refuses to delete anything.
type removeFailFS struct {
	OSFileSystem
	removeCalls int
}

func (f *removeFailFS) Remove(string) error {
	f.removeCalls++
	return errors.New("permission denied")
}

func newDoc(path string, pages int, backup bool) *document.Document {
	doc := document.New(path)
	doc.WithLock(func() {
		for i := 0; i < pages; i++ {
			doc.AddPage(document.NewPage(document.A4Width, document.A4Height))
		}
		doc.SetCreateBackupOnSave(backup)
	})
	return doc
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestSaveFirstSaveEnablesBackup(t *testing.T) {
	dir := t.TempDir()
	doc := newDoc(filepath.Join(dir, "lecture.pdf"), 1, false)
	s := &fakeSerializer{content: "v1"}

	res := NewSaveJob(doc, factory(s), nil).Save()

	target := filepath.Join(dir, "lecture.xopp")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, target, res.Target)
	assert.Equal(t, target, s.savedTo)
	assert.Equal(t, "v1", readFile(t, target))
	assert.NoFileExists(t, target+"~")

	doc.Lock()
	defer doc.Unlock()
	assert.True(t, doc.CreateBackupOnSave(), "first successful save enables backups")
	assert.Equal(t, target, doc.Path())
}

func TestSaveWithBackupRemovesBackupOnSuccess(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.xopp")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	doc := newDoc(target, 1, true)
	s := &fakeSerializer{content: "new"}

	res := NewSaveJob(doc, factory(s), nil).Save()

	require.True(t, res.OK, res.Message)
	assert.Equal(t, "new", readFile(t, target))
	assert.NoFileExists(t, target+"~")
	doc.WithLock(func() { assert.True(t, doc.CreateBackupOnSave()) })
}

func TestSaveSerializeFailureKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.xopp")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	doc := newDoc(filepath.Join(dir, "notes.pdf"), 1, true)
	s := &fakeSerializer{failWith: "disk full"}

	res := NewSaveJob(doc, factory(s), nil).Save()

	require.False(t, res.OK)
	assert.ErrorIs(t, res.Err, ErrSerialize)
	var serr *SerializeError
	require.ErrorAs(t, res.Err, &serr)
	assert.Equal(t, "disk full", serr.Message)
	assert.Equal(t, "Save file error: disk full", res.Message)

	assert.Equal(t, "old", readFile(t, target+"~"), "previous save survives as backup")
	assert.NoFileExists(t, target)
	doc.WithLock(func() {
		assert.Equal(t, target, doc.Path(), "path records the attempted target")
	})
}

func TestSaveSerializeFailureWithoutBackupKeepsFlag(t *testing.T) {
	dir := t.TempDir()
	doc := newDoc(filepath.Join(dir, "new"), 1, false)
	s := &fakeSerializer{failWith: "no space"}

	res := NewSaveJob(doc, factory(s), nil).Save()

	require.False(t, res.OK)
	doc.WithLock(func() { assert.False(t, doc.CreateBackupOnSave()) })
}

func TestSaveBackupFailureSkipsSerializer(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "missing.pdf")
	doc := newDoc(source, 1, true)
	s := &fakeSerializer{content: "never"}

	res := NewSaveJob(doc, factory(s), nil).Save()

	require.False(t, res.OK)
	assert.ErrorIs(t, res.Err, ErrBackup)
	assert.ErrorIs(t, res.Err, os.ErrNotExist)
	var berr *BackupError
	require.ErrorAs(t, res.Err, &berr)
	assert.Equal(t, filepath.Join(dir, "missing.xopp"), berr.Target)

	assert.Zero(t, s.prepareCalls, "serializer must not be invoked")
	assert.Zero(t, s.saveCalls, "serializer must not be invoked")
	assert.NoFileExists(t, filepath.Join(dir, "missing.xopp"))
	doc.WithLock(func() {
		assert.Equal(t, source, doc.Path(), "document left untouched")
		assert.True(t, doc.CreateBackupOnSave())
	})
}

func TestSaveBackupReplacesStaleBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.xopp")
	require.NoError(t, os.WriteFile(target, []byte("current"), 0o644))
	require.NoError(t, os.WriteFile(target+"~", []byte("stale"), 0o644))
	doc := newDoc(target, 1, true)
	s := &fakeSerializer{failWith: "boom"}

	res := NewSaveJob(doc, factory(s), nil).Save()

	require.False(t, res.OK)
	assert.Equal(t, "current", readFile(t, target+"~"))
}

func TestSaveBackupCleanupFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.xopp")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	doc := newDoc(target, 1, true)
	fs := &removeFailFS{}

	res := NewSaveJob(doc, factory(&fakeSerializer{content: "new"}), fs).Save()

	require.True(t, res.OK)
	assert.Nil(t, res.Err)
	assert.Equal(t, 1, fs.removeCalls)
	assert.Equal(t, "new", readFile(t, target))
	assert.Equal(t, "old", readFile(t, target+"~"))
}

func TestSaveUpdatesPreview(t *testing.T) {
	dir := t.TempDir()
	doc := newDoc(filepath.Join(dir, "a"), 2, false)

	res := NewSaveJob(doc, factory(&fakeSerializer{}), nil).Save()
	require.True(t, res.OK)

	doc.Lock()
	prev := doc.Preview()
	doc.Unlock()
	require.NotNil(t, prev)
	assert.Equal(t, 128, prev.Bounds().Dy())
	assert.Equal(t, 90, prev.Bounds().Dx())
}

func TestSaveEmptyDocumentClearsPreview(t *testing.T) {
	dir := t.TempDir()
	doc := newDoc(filepath.Join(dir, "empty"), 1, false)
	require.True(t, NewSaveJob(doc, factory(&fakeSerializer{}), nil).Save().OK)
	doc.WithLock(func() {
		require.NotNil(t, doc.Preview())
		doc.DeletePage(0)
	})

	res := NewSaveJob(doc, factory(&fakeSerializer{}), nil).Save()

	require.True(t, res.OK)
	doc.WithLock(func() { assert.Nil(t, doc.Preview()) })
}

func TestSaveTwiceWithXoppHandler(t *testing.T) {
	dir := t.TempDir()
	doc := newDoc(filepath.Join(dir, "paper.pdf"), 1, false)
	target := filepath.Join(dir, "paper.xopp")
	job := NewSaveJob(doc, func() Serializer { return xopp.NewHandler() }, nil)

	require.True(t, job.Save().OK)
	require.True(t, job.Save().OK)

	assert.NoFileExists(t, target+"~")
	loaded, err := xopp.Load(target)
	require.NoError(t, err)
	loaded.WithLock(func() { assert.Equal(t, 1, loaded.PageCount()) })
}

func TestResaveKeepsFileMode(t *testing.T) {
	dir := t.TempDir()
	doc := newDoc(filepath.Join(dir, "paper.pdf"), 1, false)
	target := filepath.Join(dir, "paper.xopp")
	job := NewSaveJob(doc, func() Serializer { return xopp.NewHandler() }, nil)

	require.True(t, job.Save().OK)
	require.NoError(t, os.Chmod(target, 0o640))
	require.True(t, job.Save().OK, "second save goes through the backup")

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}
