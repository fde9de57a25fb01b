package option

import (
	"fmt"
	"time"

	"auctionhouse/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption customises a gorm query built by the repository layer.
type QueryOption func(*gorm.DB) *gorm.DB

type QuerySortBy struct {
	Field   string
	OrderBy string
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		field := sort.Field
		if field == "" {
			field = "created_at"
		}
		order := sort.OrderBy
		if order != "ASC" && order != "DESC" {
			order = "ASC"
		}
		return tx.Order(fmt.Sprintf("%s %s", field, order))
	}
}

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}
		tx = tx.Limit(limit)

		if p.Cursor != "" {
			cursor, err := pagination.DecodeCursor(p.Cursor)
			if err == nil && cursor.ID != "" {
				tx = tx.Where("id > ?", cursor.ID)
			}
		}

		return tx
	}
}

// ApplyKeysetPagination pages on a (time, id) keyset. Unlike ApplyPagination
// it does not require string IDs to compare in insertion order, so it stays
// correct when IDs vary in length.
func ApplyKeysetPagination(p pagination.Pagination, timeField string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}
		tx = tx.Limit(limit)

		if p.Cursor == "" {
			return tx
		}
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil || cursor.ID == "" || cursor.CreatedAt == "" {
			return tx
		}
		at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return tx
		}
		cond := fmt.Sprintf("%s > ? OR (%s = ? AND id > ?)", timeField, timeField)
		return tx.Where(cond, at, at, cursor.ID)
	}
}

func Where(query interface{}, args ...interface{}) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(query, args...)
	}
}
