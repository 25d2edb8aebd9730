package core

import (
	"context"
	"time"
)

// TextExtractor converts raw document bytes into ordered per-page text.
// mimeType and title are hints used to pick the extraction strategy.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, title string) ([]string, error)
}

// IngestLocker grants a per-document lease so that only one ingestion run
// works on a document at a time.
type IngestLocker interface {
	// Acquire returns a release func when the lease was taken, or ok == false
	// when another holder owns it.
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (release func(), ok bool, err error)
}
