package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

type ProductWriter interface {
	Upsert(ctx context.Context, in productrepo.CreateInput) (*domain.Product, error)
}

type CategoryWriter interface {
	UpsertBySlug(ctx context.Context, name, slug string) (*domain.Category, error)
}

// CSVImporter reads catalog CSV exports and inserts/updates products,
// creating referenced categories on the fly.
type CSVImporter struct {
	reader     *csv.Reader
	products   ProductWriter
	categories CategoryWriter
}

func NewCSVImporter(r io.Reader, products ProductWriter, categories CategoryWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:     csvr,
		products:   products,
		categories: categories,
	}
}

type csvRow struct {
	Title        string
	Desc         string
	Cents        int64
	Stock        int
	CategorySlug string
	ImageURLs    []string
}

// Run parses CSV rows and upserts products. Rows with an empty title are
// treated as image continuations of the preceding product.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	categoryIDs := map[string]string{}

	var (
		current  *csvRow
		imported int
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		row := parseRow(record, index)
		if row == nil {
			continue
		}

		if row.Title != "" {
			if current != nil {
				if err := i.save(ctx, current, categoryIDs); err != nil {
					return imported, err
				}
				imported++
			}
			current = row
			continue
		}

		// Continuation rows (images) belong to the current product.
		if current != nil && len(row.ImageURLs) > 0 {
			current.ImageURLs = append(current.ImageURLs, row.ImageURLs...)
		}
	}

	if current != nil {
		if err := i.save(ctx, current, categoryIDs); err != nil {
			return imported, err
		}
		imported++
	}

	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow, categoryIDs map[string]string) error {
	if row.Title == "" || row.Cents <= 0 {
		return fmt.Errorf("invalid product row (missing required fields) for title %q", row.Title)
	}
	if row.Stock < 0 {
		return fmt.Errorf("negative stock for title %q", row.Title)
	}

	var categoryID *string
	if row.CategorySlug != "" {
		id, ok := categoryIDs[row.CategorySlug]
		if !ok {
			cat, err := i.categories.UpsertBySlug(ctx, slugToName(row.CategorySlug), row.CategorySlug)
			if err != nil {
				return fmt.Errorf("upsert category %q: %w", row.CategorySlug, err)
			}
			id = cat.ID
			categoryIDs[row.CategorySlug] = id
		}
		categoryID = &id
	}

	_, err := i.products.Upsert(ctx, productrepo.CreateInput{
		CategoryID:  categoryID,
		Title:       row.Title,
		Description: row.Desc,
		PriceCents:  row.Cents,
		Stock:       row.Stock,
		Images:      row.ImageURLs,
	})
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", row.Title, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[h] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) *csvRow {
	title := pick(record, index, "title")
	desc := pick(record, index, "description")
	centStr := pick(record, index, "price_cents")
	stockStr := pick(record, index, "stock")
	slug := pick(record, index, "category_slug")
	imageURL := pick(record, index, "image_url")

	if title == "" && imageURL == "" {
		return nil
	}

	var cents int64
	if centStr != "" {
		cents, _ = strconv.ParseInt(centStr, 10, 64)
	}
	var stock int
	if stockStr != "" {
		stock, _ = strconv.Atoi(stockStr)
	}

	row := &csvRow{
		Title:        title,
		Desc:         desc,
		Cents:        cents,
		Stock:        stock,
		CategorySlug: slug,
	}
	if imageURL != "" {
		row.ImageURLs = []string{strings.TrimSpace(imageURL)}
	}
	return row
}

func slugToName(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
