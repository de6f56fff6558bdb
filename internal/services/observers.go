package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/gcp"
	"github.com/Lllllllleong/xoppsave/internal/models"
)

// Mirror uploads every successfully saved file to a Cloud Storage bucket.
type Mirror struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

func NewMirror(client *storage.Client, bucketName, prefix string) *Mirror {
	return &Mirror{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		prefix:     prefix,
	}
}

// ObjectName is the object a saved target is mirrored to.
func (m *Mirror) ObjectName(target string) string {
	return path.Join(m.prefix, filepath.Base(target))
}

// URI is the gs:// location a saved target is mirrored to.
func (m *Mirror) URI(target string) string {
	return fmt.Sprintf("gs://%s/%s", m.bucketName, m.ObjectName(target))
}

// Upload copies the saved target to the bucket and returns the object name.
func (m *Mirror) Upload(ctx context.Context, target string) (string, error) {
	object := m.ObjectName(target)
	if err := gcp.UploadFile(ctx, m.bucket, target, object, false); err != nil {
		return "", fmt.Errorf("mirror %s: %w", target, err)
	}
	return object, nil
}

func (m *Mirror) SaveFinished(ctx context.Context, doc *document.Document, res SaveResult) error {
	if !res.OK {
		return nil
	}
	object, err := m.Upload(ctx, res.Target)
	if err != nil {
		return err
	}
	slog.Info("Saved file mirrored.", "documentId", doc.ID(), "gcsBucket", m.bucketName, "gcsObject", object)
	return nil
}

// Journal records every save attempt in a Firestore collection.
type Journal struct {
	client     *firestore.Client
	collection string
	mirror     *Mirror
}

// NewJournal creates a journal. mirror may be nil; when set, records carry
// the mirror URI of successful saves.
func NewJournal(client *firestore.Client, collection string, mirror *Mirror) *Journal {
	return &Journal{client: client, collection: collection, mirror: mirror}
}

func (j *Journal) SaveFinished(ctx context.Context, doc *document.Document, res SaveResult) error {
	rec := NewSaveRecord(doc, res, time.Now())
	if res.OK && j.mirror != nil {
		rec.MirrorURI = j.mirror.URI(res.Target)
	}
	_, err := j.Record(ctx, rec)
	return err
}

// Record adds rec to the journal collection.
func (j *Journal) Record(ctx context.Context, rec models.SaveRecord) (*firestore.DocumentRef, error) {
	ref, _, err := j.client.Collection(j.collection).Add(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to write save record: %w", err)
	}
	return ref, nil
}

// NewSaveRecord describes res as a journal entry. The file hash is only
// computed for successful saves.
func NewSaveRecord(doc *document.Document, res SaveResult, now time.Time) models.SaveRecord {
	doc.Lock()
	pages := doc.PageCount()
	doc.Unlock()

	rec := models.SaveRecord{
		DocumentID: doc.ID(),
		Target:     res.Target,
		PageCount:  pages,
		CreatedAt:  now,
	}
	if !res.OK {
		rec.Status = models.StatusFailed
		if res.Err != nil {
			rec.ErrorDetails = res.Err.Error()
		}
		return rec
	}

	rec.Status = models.StatusSaved
	hash, err := gcp.FileHash(res.Target)
	if err != nil {
		slog.Warn("Could not hash saved file.", "target", res.Target, "error", err)
	}
	rec.FileHash = hash
	return rec
}
