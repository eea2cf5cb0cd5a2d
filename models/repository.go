package models

import "context"

// Repository exposes the package-level product queries as a value that can be
// handed to components depending on narrower interfaces.
type Repository struct{}

// NewRepository returns a repository backed by the initialized database.
func NewRepository() *Repository {
	return &Repository{}
}

func (Repository) CommitCover(ctx context.Context, productID, coverSource string, variants []Variant) error {
	return CommitCover(ctx, productID, coverSource, variants)
}

func (Repository) MarkSyncFailed(ctx context.Context, productID, reason string) error {
	return MarkSyncFailed(ctx, productID, reason)
}

func (Repository) UpsertGalleryVariant(ctx context.Context, productID string, v GalleryVariant) error {
	return UpsertGalleryVariant(ctx, productID, v)
}

func (Repository) PruneGalleryVariants(ctx context.Context, productID string, keep []string) ([]string, error) {
	return PruneGalleryVariants(ctx, productID, keep)
}

func (Repository) RecordSkippedAttempt(ctx context.Context, productID string) error {
	return RecordSkippedAttempt(ctx, productID)
}

func (Repository) GetSyncCandidates(ctx context.Context, limit int) ([]Product, error) {
	return GetSyncCandidates(ctx, limit)
}

func (Repository) FindProductsForRepair(ctx context.Context, filter RepairFilter) ([]Product, error) {
	return FindProductsForRepair(ctx, filter)
}

func (Repository) ResetSyncStatus(ctx context.Context, ids []string) (int64, error) {
	return ResetSyncStatus(ctx, ids)
}

func (Repository) CountImageKinds(ctx context.Context) (int64, int64, error) {
	return CountImageKinds(ctx)
}
