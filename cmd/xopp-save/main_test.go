package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/services"
	"github.com/Lllllllleong/xoppsave/internal/xopp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDocumentBlankPages(t *testing.T) {
	doc, err := buildDocument("", "", "notes", 3, document.StyleGraph)
	require.NoError(t, err)

	doc.WithLock(func() {
		assert.Equal(t, 3, doc.PageCount())
		assert.Equal(t, document.StyleGraph, doc.Page(2).Background.Style)
		assert.False(t, doc.CreateBackupOnSave())
	})
}

func TestBuildDocumentRejectsNegativePages(t *testing.T) {
	_, err := buildDocument("", "", "notes", -1, document.StylePlain)
	assert.Error(t, err)
}

func TestBuildDocumentOpenEnablesBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.xopp")
	first, err := buildDocument("", "", filepath.Join(dir, "notes"), 1, document.StylePlain)
	require.NoError(t, err)
	require.True(t, services.NewSaveJob(first, func() services.Serializer { return xopp.NewHandler() }, nil).Save().OK)

	doc, err := buildDocument("", target, "", 0, "")
	require.NoError(t, err)
	doc.WithLock(func() { assert.True(t, doc.CreateBackupOnSave()) })

	res := services.NewSaveJob(doc, func() services.Serializer { return xopp.NewHandler() }, nil).Save()
	require.True(t, res.OK)
	assert.FileExists(t, target)
	assert.NoFileExists(t, target+"~", "backup is removed after a successful save")
}

func TestBuildDocumentOpenWithoutExistingTarget(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "notes.xopp")
	first, err := buildDocument("", "", saved, 1, document.StylePlain)
	require.NoError(t, err)
	require.True(t, services.NewSaveJob(first, func() services.Serializer { return xopp.NewHandler() }, nil).Save().OK)
	renamed := filepath.Join(dir, "notes.bak")
	require.NoError(t, os.Rename(saved, renamed))

	doc, err := buildDocument("", renamed, "", 0, "")
	require.NoError(t, err)
	doc.WithLock(func() { assert.False(t, doc.CreateBackupOnSave(), "notes.bak.xopp does not exist yet") })
}

func TestClosingFatalClosesBeforeExit(t *testing.T) {
	var calls []string
	fatal := closingFatal(
		func() { calls = append(calls, "close") },
		func(code int) {
			assert.Equal(t, 1, code)
			calls = append(calls, "exit")
		},
	)

	fatal("Save file error: disk full")

	assert.Equal(t, []string{"close", "exit"}, calls)
}
