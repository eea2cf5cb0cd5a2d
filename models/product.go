package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// SyncStatus is the image synchronization state of a product.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
	StatusFailed  SyncStatus = "failed"
)

// ErrStateConflict is returned when a transition finds the product in a state
// other than the one it expects.
var ErrStateConflict = errors.New("product sync state changed concurrently")

// ErrProductNotFound is returned when no product row matches.
var ErrProductNotFound = errors.New("product not found")

// CommitError wraps a failed database write of sync results.
type CommitError struct {
	ProductID string
	Op        string
	Err       error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s for product %s: %v", e.Op, e.ProductID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Variant is one stored rendition of a product's cover.
type Variant struct {
	Width       int    `json:"resolutionWidth"`
	StoragePath string `json:"storagePath"`
	URL         string `json:"url"`
	Primary     bool   `json:"primary,omitempty"`
}

// GalleryVariant is one stored rendition of a gallery image.
type GalleryVariant struct {
	Position    int    `json:"position"`
	SourceRef   string `json:"sourceRef"`
	Width       int    `json:"resolutionWidth"`
	StoragePath string `json:"storagePath"`
	URL         string `json:"url"`
}

// Product holds the image-related columns of a catalog product.
type Product struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Reference   string     `json:"reference"`
	Brand       string     `json:"brand"`
	Name        string     `json:"name"`
	ImageURL    string     `json:"imageUrl"`
	Images      string     `json:"images"`
	CoverSource string     `json:"coverSource,omitempty"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	SyncError   string     `json:"syncError,omitempty"`
	SyncedAt    int64      `json:"syncedAt,omitempty"`
	UpdatedAt   int64      `json:"updatedAt"`

	CoverVariants   []Variant        `json:"coverVariants,omitempty"`
	GalleryVariants []GalleryVariant `json:"galleryVariants,omitempty"`
}

// RepairFilter narrows a repair run. IDs take precedence over Brand/Search.
type RepairFilter struct {
	IDs    []string
	Brand  string
	Search string
	Limit  int
}

const productColumns = `id, tenant_id, reference, brand, name, COALESCE(image_url, ''), COALESCE(images, ''),
	COALESCE(cover_source, ''), sync_status, COALESCE(sync_error, ''), COALESCE(synced_at, 0), updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var status string
	err := row.Scan(&p.ID, &p.TenantID, &p.Reference, &p.Brand, &p.Name, &p.ImageURL, &p.Images,
		&p.CoverSource, &status, &p.SyncError, &p.SyncedAt, &p.UpdatedAt)
	p.SyncStatus = SyncStatus(status)
	return p, err
}

func queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			log.Errorf("Failed to scan product row: %v", err)
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct returns a product with its cover and gallery variants
func GetProduct(ctx context.Context, id string) (*Product, error) {
	row := db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.CoverVariants, err = GetCoverVariants(ctx, id); err != nil {
		return nil, err
	}
	if p.GalleryVariants, err = GetGalleryVariants(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSyncCandidates returns up to limit products awaiting sync, pending
// products first, then failed ones. Within each group products never
// attempted come first, then the least recently attempted, then the oldest.
func GetSyncCandidates(ctx context.Context, limit int) ([]Product, error) {
	return queryProducts(ctx, `SELECT `+productColumns+` FROM products
		WHERE sync_status IN ('pending', 'failed')
		ORDER BY CASE sync_status WHEN 'pending' THEN 0 ELSE 1 END, COALESCE(last_attempt_at, 0), updated_at, id
		LIMIT ?`, limit)
}

// RecordSkippedAttempt notes that a product was looked at without reaching a
// terminal state. Status, error and variants are not touched.
func RecordSkippedAttempt(ctx context.Context, productID string) error {
	_, err := db.ExecContext(ctx, `UPDATE products SET last_attempt_at = ? WHERE id = ?`, time.Now().Unix(), productID)
	return err
}

// FindProductsForRepair selects products for a repair run.
func FindProductsForRepair(ctx context.Context, filter RepairFilter) ([]Product, error) {
	var where []string
	var args []any

	switch {
	case len(filter.IDs) > 0:
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		where = append(where, "id IN ("+placeholders+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	default:
		if filter.Brand != "" {
			where = append(where, "brand = ? COLLATE NOCASE")
			args = append(args, filter.Brand)
		}
		if filter.Search != "" {
			where = append(where, "(name LIKE ? OR reference LIKE ?)")
			pattern := "%" + filter.Search + "%"
			args = append(args, pattern, pattern)
		}
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE sync_status WHEN 'synced' THEN 1 ELSE 0 END, updated_at, id LIMIT ?`
	args = append(args, filter.Limit)

	return queryProducts(ctx, query, args...)
}

// ResetSyncStatus moves the given products back to pending so they can be
// processed again. Cover variants are kept.
func ResetSyncStatus(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{time.Now().Unix()}
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := db.ExecContext(ctx, `UPDATE products SET sync_status = 'pending', updated_at = ?
		WHERE id IN (`+placeholders+`) AND sync_status != 'pending'`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CommitCover atomically replaces a pending product's cover variants, marks it
// synced and clears its error.
func CommitCover(ctx context.Context, productID, coverSource string, variants []Variant) error {
	if len(variants) == 0 {
		return &CommitError{ProductID: productID, Op: "cover", Err: errors.New("no variants")}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &CommitError{ProductID: productID, Op: "cover", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `UPDATE products
		SET sync_status = 'synced', sync_error = NULL, cover_source = ?, synced_at = ?, updated_at = ?
		WHERE id = ? AND sync_status = 'pending'`, coverSource, now, now, productID)
	if err != nil {
		return &CommitError{ProductID: productID, Op: "cover", Err: err}
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		if err == nil {
			err = ErrStateConflict
		}
		return &CommitError{ProductID: productID, Op: "cover", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_cover_variants WHERE product_id = ?`, productID); err != nil {
		return &CommitError{ProductID: productID, Op: "cover", Err: err}
	}
	for _, v := range variants {
		if _, err := tx.ExecContext(ctx, `INSERT INTO product_cover_variants (product_id, width, storage_path, url, is_primary)
			VALUES (?, ?, ?, ?, ?)`, productID, v.Width, v.StoragePath, v.URL, v.Primary); err != nil {
			return &CommitError{ProductID: productID, Op: "cover", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &CommitError{ProductID: productID, Op: "cover", Err: err}
	}
	return nil
}

// MarkSyncFailed records a terminal cover failure. Existing cover variants are
// left untouched.
func MarkSyncFailed(ctx context.Context, productID, reason string) error {
	res, err := db.ExecContext(ctx, `UPDATE products SET sync_status = 'failed', sync_error = ?, updated_at = ?
		WHERE id = ? AND sync_status = 'pending'`, reason, time.Now().Unix(), productID)
	if err != nil {
		return &CommitError{ProductID: productID, Op: "failure", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &CommitError{ProductID: productID, Op: "failure", Err: err}
	}
	if n == 0 {
		return &CommitError{ProductID: productID, Op: "failure", Err: ErrStateConflict}
	}
	return nil
}

// PruneGalleryVariants deletes the gallery rows of every source not in keep
// and returns the storage paths they pointed at.
func PruneGalleryVariants(ctx context.Context, productID string, keep []string) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
	}
	defer tx.Rollback()

	filter := ""
	args := []any{productID}
	if len(keep) > 0 {
		filter = ` AND source_ref NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + `)`
		for _, ref := range keep {
			args = append(args, ref)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT storage_path FROM product_gallery_variants
		WHERE product_id = ?`+filter, args...)
	if err != nil {
		return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
	}
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
		}
		paths = append(paths, path)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
	}
	if len(paths) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_gallery_variants WHERE product_id = ?`+filter, args...); err != nil {
		return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
	}

	// Objects another row still points at are not reported.
	orphaned := paths[:0]
	for _, path := range paths {
		var inUse int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_gallery_variants WHERE storage_path = ?`, path).Scan(&inUse)
		if err != nil {
			return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
		}
		if inUse == 0 {
			orphaned = append(orphaned, path)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &CommitError{ProductID: productID, Op: "gallery prune", Err: err}
	}
	return orphaned, nil
}

// UpsertGalleryVariant records one gallery rendition, replacing an existing
// row for the same source and width.
func UpsertGalleryVariant(ctx context.Context, productID string, v GalleryVariant) error {
	_, err := db.ExecContext(ctx, `INSERT INTO product_gallery_variants
		(product_id, source_ref, position, width, storage_path, url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, source_ref, width) DO UPDATE SET
			position = excluded.position,
			storage_path = excluded.storage_path,
			url = excluded.url,
			updated_at = excluded.updated_at`,
		productID, v.SourceRef, v.Position, v.Width, v.StoragePath, v.URL, time.Now().Unix())
	if err != nil {
		return &CommitError{ProductID: productID, Op: "gallery", Err: err}
	}
	return nil
}

// GetCoverVariants returns a product's cover variants by ascending width
func GetCoverVariants(ctx context.Context, productID string) ([]Variant, error) {
	rows, err := db.QueryContext(ctx, `SELECT width, storage_path, url, is_primary
		FROM product_cover_variants WHERE product_id = ? ORDER BY width`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.Width, &v.StoragePath, &v.URL, &v.Primary); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// GetGalleryVariants returns a product's gallery variants in display order
func GetGalleryVariants(ctx context.Context, productID string) ([]GalleryVariant, error) {
	rows, err := db.QueryContext(ctx, `SELECT position, source_ref, width, storage_path, url
		FROM product_gallery_variants WHERE product_id = ? ORDER BY position, width`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []GalleryVariant
	for rows.Next() {
		var v GalleryVariant
		if err := rows.Scan(&v.Position, &v.SourceRef, &v.Width, &v.StoragePath, &v.URL); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// CountImageKinds returns how many products have an internalized cover and how
// many still only carry external references.
func CountImageKinds(ctx context.Context) (internal int64, external int64, err error) {
	err = db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN EXISTS (SELECT 1 FROM product_cover_variants v WHERE v.product_id = p.id) THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT EXISTS (SELECT 1 FROM product_cover_variants v WHERE v.product_id = p.id)
			AND (COALESCE(p.image_url, '') != '' OR COALESCE(p.images, '') != '') THEN 1 ELSE 0 END), 0)
		FROM products p`).Scan(&internal, &external)
	return internal, external, err
}

// CountByStatus returns the number of products in each sync state
func CountByStatus(ctx context.Context) (map[SyncStatus]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM products GROUP BY sync_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[SyncStatus]int64{StatusPending: 0, StatusSynced: 0, StatusFailed: 0}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

// UpsertProduct inserts or updates a catalog product. When either image field
// changes the product goes back to pending.
func UpsertProduct(ctx context.Context, p Product) error {
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `INSERT INTO products
		(id, tenant_id, reference, brand, name, image_url, images, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			reference = excluded.reference,
			brand = excluded.brand,
			name = excluded.name,
			sync_status = CASE
				WHEN COALESCE(products.image_url, '') != COALESCE(excluded.image_url, '')
					OR COALESCE(products.images, '') != COALESCE(excluded.images, '')
				THEN 'pending' ELSE products.sync_status END,
			last_attempt_at = CASE
				WHEN COALESCE(products.image_url, '') != COALESCE(excluded.image_url, '')
					OR COALESCE(products.images, '') != COALESCE(excluded.images, '')
				THEN NULL ELSE products.last_attempt_at END,
			image_url = excluded.image_url,
			images = excluded.images,
			updated_at = excluded.updated_at`,
		p.ID, p.TenantID, p.Reference, p.Brand, p.Name, p.ImageURL, p.Images, now, now)
	return err
}
