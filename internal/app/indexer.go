package app

import (
	"context"
	"fmt"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
)

// vectorWriter is the write side of an embedding store the service owns.
type vectorWriter interface {
	Upsert(ctx context.Context, products ...domain.Product) error
	Remove(ctx context.Context, id string) error
}

// mirrorIndexer applies catalog writes to the text index and then to a
// locally owned vector store, so both engines see the same catalog.
type mirrorIndexer struct {
	text    engine.Indexer
	vectors vectorWriter
}

var _ engine.Indexer = (*mirrorIndexer)(nil)

func (m *mirrorIndexer) Index(ctx context.Context, product *domain.Product) error {
	if err := m.text.Index(ctx, product); err != nil {
		return err
	}
	if err := m.vectors.Upsert(ctx, *product); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (m *mirrorIndexer) Delete(ctx context.Context, id string) error {
	if err := m.text.Delete(ctx, id); err != nil {
		return err
	}
	if err := m.vectors.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove embedding: %w", err)
	}
	return nil
}

func (m *mirrorIndexer) BulkIndex(ctx context.Context, products []domain.Product) error {
	if err := m.text.BulkIndex(ctx, products); err != nil {
		return err
	}
	if err := m.vectors.Upsert(ctx, products...); err != nil {
		return fmt.Errorf("upsert embeddings: %w", err)
	}
	return nil
}
