package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/alexander-bruun/vitrine/imageref"
	"github.com/alexander-bruun/vitrine/models"
)

// feedItem is one product in a catalog feed. Image fields keep whatever shape
// the vendor sent.
type feedItem struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	Reference string       `json:"reference"`
	Brand     string       `json:"brand"`
	Name      string       `json:"name"`
	ImageURL  imageref.Raw `json:"imageUrl"`
	Images    imageref.Raw `json:"images"`
}

// ImportStats counts the outcome of a feed import.
type ImportStats struct {
	Imported int
	Skipped  int
}

// NewImportCmd creates the import command
func NewImportCmd(dataDirectory *string) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Import products from a JSON catalog feed",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withDB(resolveDataDirectory(*dataDirectory), cmd, func() error {
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return fmt.Errorf("failed to open feed: %w", err)
					}
					defer f.Close()
					r = f
				}

				stats, err := importFeed(cmd.Context(), r, tenant)
				if err != nil {
					return err
				}
				cmd.Printf("Imported %d products, skipped %d\n", stats.Imported, stats.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant for items that carry none")
	return cmd
}

// importFeed upserts every item of a JSON array feed. Items without an id or
// tenant are skipped; products whose image fields changed go back to pending.
func importFeed(ctx context.Context, r io.Reader, defaultTenant string) (ImportStats, error) {
	var stats ImportStats

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return stats, fmt.Errorf("failed to read feed: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return stats, errors.New("feed must be a JSON array of products")
	}

	for dec.More() {
		var item feedItem
		if err := dec.Decode(&item); err != nil {
			return stats, fmt.Errorf("failed to decode item %d: %w", stats.Imported+stats.Skipped+1, err)
		}
		if item.TenantID == "" {
			item.TenantID = defaultTenant
		}
		if strings.TrimSpace(item.ID) == "" || item.TenantID == "" {
			log.Warnf("Skipping feed item without id or tenant (reference %q)", item.Reference)
			stats.Skipped++
			continue
		}

		product := models.Product{
			ID:        item.ID,
			TenantID:  item.TenantID,
			Reference: item.Reference,
			Brand:     item.Brand,
			Name:      item.Name,
			ImageURL:  rawColumn(item.ImageURL),
			Images:    rawColumn(item.Images),
		}
		if err := models.UpsertProduct(ctx, product); err != nil {
			return stats, fmt.Errorf("failed to import product %s: %w", item.ID, err)
		}
		stats.Imported++
	}

	if _, err := dec.Token(); err != nil {
		return stats, fmt.Errorf("failed to read feed: %w", err)
	}
	return stats, nil
}

// rawColumn stores strings verbatim and lists as JSON text.
func rawColumn(r imageref.Raw) string {
	switch r.Kind {
	case imageref.RawString:
		return r.Str
	case imageref.RawList:
		data, err := json.Marshal(r)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}
