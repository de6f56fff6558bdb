package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/xoppsave/internal/models"
	"github.com/Lllllllleong/xoppsave/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/gogpu/gg"
)

var (
	converterInstance *services.ConverterFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	gg.SetLogger(logger)

	functions.CloudEvent("ConvertPDF", convertPDF)
}

// main is required by the Go Functions Framework.
func main() {}

// convertPDF is the Cloud Function entry point, triggered by object
// finalization in the upload bucket.
func convertPDF(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		converterInstance, initErr = services.NewConverter(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process.
	if _, err := converterInstance.Process(ctx, gcsEvent); err != nil {
		return err
	}
	return nil
}
