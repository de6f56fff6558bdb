// Command xopp-save creates or re-saves a note document from the command
// line. It runs unattended, so a failed save terminates with exit status 1.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/gcp"
	"github.com/Lllllllleong/xoppsave/internal/services"
	"github.com/Lllllllleong/xoppsave/internal/xopp"
	"github.com/gogpu/gg"
)

func main() {
	var (
		pdfPath  = flag.String("pdf", "", "annotate this PDF; the document is saved next to it")
		openPath = flag.String("open", "", "re-save an existing .xopp document")
		outPath  = flag.String("out", "notes", "path of a new blank document")
		pages    = flag.Int("pages", 1, "number of blank pages for a new document")
		style    = flag.String("style", document.StylePlain, "ruling of blank pages: plain, lined or graph")
		backup   = flag.Bool("backup", false, "move an existing target aside before the first save (always on with -open)")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	gg.SetLogger(logger)

	doc, err := buildDocument(*pdfPath, *openPath, *outPath, *pages, *style)
	if err != nil {
		slog.Error("Could not create document.", "error", err)
		os.Exit(1)
	}
	if *backup {
		doc.WithLock(func() { doc.SetCreateBackupOnSave(true) })
	}

	ctx := context.Background()
	cfg, err := services.LoadRunnerConfig(false)
	if err != nil {
		slog.Error("Invalid configuration.", "error", err)
		os.Exit(1)
	}
	observers, closeFn, err := cloudObservers(ctx)
	if err != nil {
		slog.Error("Could not set up cloud observers.", "error", err)
		os.Exit(1)
	}

	runner := services.NewRunner(cfg, nil, observers...)
	runner.Fatal = closingFatal(closeFn, os.Exit)
	res, err := runner.Save(ctx, doc)
	closeFn()
	if err != nil {
		slog.Error("Save did not run.", "error", err)
		os.Exit(1)
	}
	fmt.Println(res.Target)
}

// closingFatal releases the cloud clients before exiting. Fatal runs inside
// Save, so deferred calls in main would never run.
func closingFatal(closeFn func(), exit func(int)) func(string) {
	return func(message string) {
		closeFn()
		slog.Error("Unattended save failed.", "error", message)
		exit(1)
	}
}

func buildDocument(pdfPath, openPath, outPath string, pages int, style string) (*document.Document, error) {
	switch {
	case pdfPath != "":
		src, err := document.OpenPDF(pdfPath)
		if err != nil {
			return nil, err
		}
		return document.NewFromPDF(pdfPath, src), nil
	case openPath != "":
		doc, err := xopp.Load(openPath)
		if err != nil {
			return nil, err
		}
		// An existing target is moved aside while saving.
		if _, err := os.Stat(services.TargetPath(openPath)); err == nil {
			doc.WithLock(func() { doc.SetCreateBackupOnSave(true) })
		}
		return doc, nil
	}

	if pages < 0 {
		return nil, fmt.Errorf("page count must not be negative, got %d", pages)
	}
	doc := document.New(outPath)
	for i := 0; i < pages; i++ {
		p := document.NewPage(document.A4Width, document.A4Height)
		p.Background.Style = style
		doc.AddPage(p)
	}
	return doc, nil
}

// cloudObservers wires the bucket mirror and the Firestore journal when
// XOPP_MIRROR_BUCKET and PROJECT_ID are set.
func cloudObservers(ctx context.Context) ([]services.Observer, func(), error) {
	var observers []services.Observer
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var mirror *services.Mirror
	if bucket := gcp.GetEnv("XOPP_MIRROR_BUCKET", ""); bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to create Storage client: %w", err)
		}
		closers = append(closers, client.Close)
		mirror = services.NewMirror(client, bucket, gcp.GetEnv("XOPP_MIRROR_PREFIX", ""))
		observers = append(observers, mirror)
	}

	if projectID := gcp.GetEnv("PROJECT_ID", ""); projectID != "" {
		client, err := gcp.NewFirestoreClient(ctx, projectID)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, client.Close)
		observers = append(observers, services.NewJournal(client, gcp.GetEnv("FIRESTORE_COLLECTION", "saves"), mirror))
	}
	return observers, closeAll, nil
}
