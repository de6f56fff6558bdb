package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/gcp"
	"github.com/Lllllllleong/xoppsave/internal/models"
)

type ConverterConfig struct {
	ProjectID      string
	OutputBucket   string
	CollectionName string
}

// recorder is the part of the Journal the converter writes to.
type recorder interface {
	Record(ctx context.Context, rec models.SaveRecord) (*firestore.DocumentRef, error)
}

// ConverterFunction turns uploaded PDFs into annotatable note documents and
// stores them next to the source name in the output bucket.
type ConverterFunction struct {
	storageClient *storage.Client
	journal       recorder
	config        ConverterConfig
	download      func(ctx context.Context, bucket, object, destPath string) error
}

func NewConverter(ctx context.Context) (*ConverterFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := ConverterConfig{
		ProjectID:      projectID,
		OutputBucket:   gcp.GetEnv("XOPP_OUTPUT_BUCKET", ""),
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "saves"),
	}
	if config.OutputBucket == "" {
		return nil, fmt.Errorf("XOPP_OUTPUT_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := newConverterFunction(storageClient, NewJournal(firestoreClient, config.CollectionName, nil), config)
	slog.Info("PDF converter initialized.", "outputBucket", config.OutputBucket)
	return f, nil
}

func newConverterFunction(client *storage.Client, journal recorder, config ConverterConfig) *ConverterFunction {
	return &ConverterFunction{
		storageClient: client,
		journal:       journal,
		config:        config,
		download: func(ctx context.Context, bucket, object, destPath string) error {
			return gcp.DownloadFile(ctx, client, bucket, object, destPath)
		},
	}
}

func (f *ConverterFunction) Process(ctx context.Context, e models.GCSEvent) (*models.ConvertResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !IsPDFObject(e.Name) {
		logCtx.Info("Object is not a PDF. Skipping.")
		return &models.ConvertResponse{Status: "skipped"}, nil
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp("", "pdf-converter-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourceURI := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	localPDF := filepath.Join(tempDir, path.Base(e.Name))
	if err := f.download(ctx, e.Bucket, e.Name, localPDF); err != nil {
		return nil, f.handleError(ctx, logCtx, sourceURI, "failed to download source PDF", err)
	}

	src, err := document.OpenPDF(localPDF)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, sourceURI, "failed to read PDF", err)
	}
	doc := document.NewFromPDF(localPDF, remotePDF{PDFSource: src, uri: sourceURI})
	logCtx = logCtx.With("documentId", doc.ID(), "pageCount", src.PageCount())

	runner := NewRunner(RunnerConfig{Interactive: true}, logReporter{log: logCtx})
	res, err := runner.Save(ctx, doc)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, sourceURI, "failed to start save", err)
	}

	rec := NewSaveRecord(doc, res, time.Now())
	rec.SourceObject = sourceURI
	if !res.OK {
		if _, jerr := f.journal.Record(ctx, rec); jerr != nil {
			logCtx.Error("CRITICAL: Failed to record FAILED status after a save error.", "updateError", jerr)
		}
		return nil, fmt.Errorf("save failed: %w", res.Err)
	}

	// A failed upload fails the conversion.
	mirror := NewMirror(f.storageClient, f.config.OutputBucket, OutputPrefix(e.Name))
	if _, err := mirror.Upload(ctx, res.Target); err != nil {
		return nil, f.handleError(ctx, logCtx, sourceURI, "failed to upload converted document", err)
	}
	rec.MirrorURI = mirror.URI(res.Target)
	if _, err := f.journal.Record(ctx, rec); err != nil {
		logCtx.Error("Failed to record save.", "error", err)
		return nil, err
	}

	logCtx.Info("Conversion complete.", "outputGcsUri", rec.MirrorURI)
	return &models.ConvertResponse{
		Status:     "success",
		DocumentID: doc.ID(),
		OutputURI:  rec.MirrorURI,
		PageCount:  src.PageCount(),
	}, nil
}

func (f *ConverterFunction) handleError(ctx context.Context, logCtx *slog.Logger, sourceURI, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	rec := models.SaveRecord{
		Status:       models.StatusFailed,
		ErrorDetails: fullError,
		SourceObject: sourceURI,
		CreatedAt:    time.Now(),
	}
	if _, err := f.journal.Record(ctx, rec); err != nil {
		logCtx.Error("CRITICAL: Failed to record FAILED status after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// IsPDFObject reports whether an object name looks like a PDF upload.
func IsPDFObject(name string) bool {
	return strings.EqualFold(path.Ext(name), ".pdf")
}

// OutputPrefix keeps converted documents in the same folder as their source.
func OutputPrefix(object string) string {
	dir := path.Dir(object)
	if dir == "." {
		return ""
	}
	return dir
}

// remotePDF records the bucket URI instead of the temporary download path.
type remotePDF struct {
	document.PDFSource
	uri string
}

func (r remotePDF) Filename() string { return r.uri }

// logReporter is the result surface of unattended cloud conversions: results
// go to the function log instead of a dialog.
type logReporter struct {
	log *slog.Logger
}

func (r logReporter) ShowError(message string) {
	r.log.Error("Conversion save failed.", "error", message)
}

func (r logReporter) ResetSavedStatus(doc *document.Document) {
	r.log.Info("Document saved.", "documentId", doc.ID())
}
