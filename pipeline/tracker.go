package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/utils"
)

//go:generate mockgen -destination=../mocks/mock_product_store.go -package=mocks github.com/alexander-bruun/vitrine/pipeline ProductStore

// ProductStore persists sync outcomes for a product.
type ProductStore interface {
	CommitCover(ctx context.Context, productID, coverSource string, variants []models.Variant) error
	MarkSyncFailed(ctx context.Context, productID, reason string) error
	UpsertGalleryVariant(ctx context.Context, productID string, v models.GalleryVariant) error
	PruneGalleryVariants(ctx context.Context, productID string, keep []string) ([]string, error)
}

const maxSyncErrorLength = 500

// Tracker drives the pending -> synced | failed transitions of a product.
// Gallery items are recorded but never change the product's state.
type Tracker struct {
	store ProductStore
}

// NewTracker creates a tracker writing through store.
func NewTracker(store ProductStore) *Tracker {
	return &Tracker{store: store}
}

// Synced replaces the cover variants and marks the product synced in one write.
func (t *Tracker) Synced(ctx context.Context, productID, coverSource string, variants []models.Variant) error {
	if !hasPrimary(variants) {
		return &models.CommitError{ProductID: productID, Op: "cover", Err: errors.New("no primary variant")}
	}
	return t.store.CommitCover(ctx, productID, coverSource, variants)
}

// Failed marks the product failed with a readable cause. Cover variants from
// an earlier success stay in place.
func (t *Tracker) Failed(ctx context.Context, productID string, cause error) error {
	reason := utils.Truncate(cause.Error(), maxSyncErrorLength)
	if err := t.store.MarkSyncFailed(ctx, productID, reason); err != nil {
		log.Errorf("Failed to record sync failure for product %s: %v", productID, err)
		return err
	}
	return nil
}

// GalleryItem records every variant of one gallery image.
func (t *Tracker) GalleryItem(ctx context.Context, productID string, variants []models.GalleryVariant) error {
	for _, v := range variants {
		if err := t.store.UpsertGalleryVariant(ctx, productID, v); err != nil {
			return fmt.Errorf("gallery %s: %w", v.SourceRef, err)
		}
	}
	return nil
}

// PruneGallery forgets gallery images whose source is not in current and
// returns the storage paths nothing points at any more.
func (t *Tracker) PruneGallery(ctx context.Context, productID string, current []string) ([]string, error) {
	paths, err := t.store.PruneGalleryVariants(ctx, productID, current)
	if err != nil {
		return nil, fmt.Errorf("prune gallery: %w", err)
	}
	return paths, nil
}

func hasPrimary(variants []models.Variant) bool {
	for _, v := range variants {
		if v.Primary {
			return true
		}
	}
	return false
}
