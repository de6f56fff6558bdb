package services

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/preview"
)

// Serializer encodes a document into its on-disk form. Prepare runs in
// memory; SaveTo writes to disk. An empty ErrorMessage means success.
type Serializer interface {
	Prepare(doc *document.Document)
	SaveTo(path string)
	ErrorMessage() string
}

// FileSystem is the subset of filesystem operations the save protocol needs.
type FileSystem interface {
	Rename(oldPath, newPath string) error
	Remove(path string) error
}

var (
	ErrBackup    = errors.New("backup failed")
	ErrSerialize = errors.New("serialize failed")
)

// BackupError means the existing target could not be moved aside before
// saving. Nothing was written.
type BackupError struct {
	Target string
	Err    error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("could not create backup of %s: %v", e.Target, e.Err)
}

func (e *BackupError) Unwrap() []error { return []error{ErrBackup, e.Err} }

// SerializeError carries the serializer's own failure message.
type SerializeError struct {
	Target  string
	Message string
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("could not save %s: %s", e.Target, e.Message)
}

func (e *SerializeError) Is(target error) bool { return target == ErrSerialize }

// SaveResult is the outcome of one save attempt. Message is meant for the
// user and is empty on success.
type SaveResult struct {
	OK      bool
	Target  string
	Err     error
	Message string
}

// SaveJob runs the save protocol for one document:
//
//  1. refresh the preview thumbnail,
//  2. derive the target path,
//  3. move an existing target aside to target~ if backups are enabled,
//  4. serialize under the document lock and point the document at target,
//  5. drop the backup on success, or enable backups for the next save.
//
// A SaveJob is cheap and meant to be created per save request.
type SaveJob struct {
	doc        *document.Document
	newHandler func() Serializer
	fs         FileSystem
	log        *slog.Logger
}

// NewSaveJob creates a job for doc. newHandler builds a fresh serializer
// per save.
func NewSaveJob(doc *document.Document, newHandler func() Serializer, fs FileSystem) *SaveJob {
	if fs == nil {
		fs = OSFileSystem{}
	}
	return &SaveJob{
		doc:        doc,
		newHandler: newHandler,
		fs:         fs,
		log:        slog.With("documentId", doc.ID()),
	}
}

// Save runs the protocol synchronously. It must not run concurrently with
// another save of the same document; Runner enforces that.
func (j *SaveJob) Save() SaveResult {
	preview.Update(j.doc)

	j.doc.Lock()
	target := TargetPath(j.doc.Path())
	createBackup := j.doc.CreateBackupOnSave()
	j.doc.Unlock()

	logCtx := j.log.With("target", target)
	backup := BackupPath(target)

	if createBackup {
		if err := j.fs.Rename(target, backup); err != nil {
			logCtx.Warn("Could not create backup.", "backup", backup, "error", err)
			berr := &BackupError{Target: target, Err: err}
			return SaveResult{Target: target, Err: berr, Message: "Save file error: " + berr.Error()}
		}
		logCtx.Debug("Moved previous save aside.", "backup", backup)
	}

	h := j.newHandler()
	j.doc.Lock()
	h.Prepare(j.doc)
	h.SaveTo(target)
	j.doc.SetPath(target)
	j.doc.Unlock()

	if msg := h.ErrorMessage(); msg != "" {
		logCtx.Error("Save failed.", "error", msg, "backupKept", createBackup)
		return SaveResult{
			Target:  target,
			Err:     &SerializeError{Target: target, Message: msg},
			Message: "Save file error: " + msg,
		}
	}

	if createBackup {
		if err := j.fs.Remove(backup); err != nil {
			logCtx.Warn("Could not delete backup.", "backup", backup, "error", err)
		}
	} else {
		j.doc.Lock()
		j.doc.SetCreateBackupOnSave(true)
		j.doc.Unlock()
	}

	logCtx.Info("Document saved.")
	return SaveResult{OK: true, Target: target}
}

// OSFileSystem implements FileSystem on the local disk.
type OSFileSystem struct{}

// Rename moves oldPath to newPath, replacing newPath if it exists. Unlike a
// bare rename it fails when oldPath does not exist.
func (OSFileSystem) Rename(oldPath, newPath string) error {
	if _, err := os.Stat(oldPath); err != nil {
		return err
	}
	if err := os.Remove(newPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not replace %s: %w", newPath, err)
	}
	return os.Rename(oldPath, newPath)
}

func (OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}
