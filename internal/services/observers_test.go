package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/xoppsave/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaveRecordSuccess(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.xopp")
	require.NoError(t, os.WriteFile(target, []byte("abc"), 0o644))
	doc := newDoc(target, 3, true)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	rec := NewSaveRecord(doc, SaveResult{OK: true, Target: target}, now)

	assert.Equal(t, doc.ID(), rec.DocumentID)
	assert.Equal(t, models.StatusSaved, rec.Status)
	assert.Equal(t, target, rec.Target)
	assert.Equal(t, 3, rec.PageCount)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", rec.FileHash)
	assert.Empty(t, rec.ErrorDetails)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestNewSaveRecordFailure(t *testing.T) {
	doc := newDoc("x", 1, false)
	res := SaveResult{
		Target: "x.xopp",
		Err:    &BackupError{Target: "x.xopp", Err: errors.New("permission denied")},
	}

	rec := NewSaveRecord(doc, res, time.Now())

	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "could not create backup of x.xopp: permission denied", rec.ErrorDetails)
	assert.Empty(t, rec.FileHash)
}

func TestMirrorObjectNames(t *testing.T) {
	m := &Mirror{bucketName: "notes-backup", prefix: "users/42"}

	assert.Equal(t, "users/42/paper.xopp", m.ObjectName("/home/u/paper.xopp"))
	assert.Equal(t, "gs://notes-backup/users/42/paper.xopp", m.URI("/home/u/paper.xopp"))

	bare := &Mirror{bucketName: "b"}
	assert.Equal(t, "paper.xopp", bare.ObjectName("/tmp/paper.xopp"))
}
