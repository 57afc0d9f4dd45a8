package platforms

import (
	"context"

	"github.com/sw33tLie/fanmirror/pkg/importer"
)

// Result sums up one platform import.
type Result struct {
	Pages   int
	Summary importer.Summary
}

// PlatformImporter defines a common interface for platform-specific import
// runs, abstracting away the session handling, listing and payload parsing
// of each platform.
type PlatformImporter interface {
	Name() string
	// Import crawls everything the session can see. Per-post failures are
	// logged against the job and never returned; only errors that end the
	// whole run are.
	Import(ctx context.Context, job importer.Job, session string) (Result, error)
}
