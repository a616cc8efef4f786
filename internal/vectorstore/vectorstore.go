// Package vectorstore builds the per-document vector store selected in the
// configuration.
package vectorstore

import (
	"context"

	"pdfchat/internal/domain"
)

// Factory returns the store named key. Keys are unique per indexed upload,
// so two stores never share storage.
type Factory func(ctx context.Context, key string) (domain.VectorStore, error)
