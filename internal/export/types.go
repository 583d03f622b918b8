// Package export renders signing artifacts: a PDF snapshot of a
// document's lifecycle metadata and signature chain, pinned alongside
// the published file.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for rendering a signing artifact.
type Request struct {
	DocumentID string
}

// Result contains the rendered artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// SignatureEntry is one row of the rendered signature chain.
type SignatureEntry struct {
	Role     string
	Name     string
	SignedAt time.Time
	Comment  string
}

var (
	// ErrContentUnavailable indicates document data could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
