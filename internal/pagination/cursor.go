// Package pagination implements opaque-cursor keyset pagination, shared by
// every list endpoint. Offset pagination drifts under concurrent inserts;
// paging by an exclusive key bound visits a stable dataset exactly once.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"commune/backend/internal/apperr"

	"gorm.io/gorm"
)

// Keyed is any row type whose unique, order-preserving key can back a cursor.
type Keyed interface {
	PageKey() uint
}

// Page is one page of results walking newest-to-oldest.
type Page[T Keyed] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// EncodeCursor renders a row key as an opaque cursor token.
func EncodeCursor(key uint) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(key), 10)))
}

// DecodeCursor parses a cursor token back into a row key.
func DecodeCursor(cursor string) (uint, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apperr.Validation("malformed cursor")
	}
	key, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, apperr.Validation("malformed cursor")
	}
	return uint(key), nil
}

// Paginate fetches one page ordered by keyColumn descending, bounded
// exclusively by cursor if present. It fetches limit+1 rows: the extra row
// only signals that another page exists and is never returned.
func Paginate[T Keyed](db *gorm.DB, keyColumn string, limit int, cursor string) (*Page[T], error) {
	if limit < 1 {
		limit = 1
	}

	query := db.Order(fmt.Sprintf("%s DESC", keyColumn)).Limit(limit + 1)
	if cursor != "" {
		key, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		query = query.Where(fmt.Sprintf("%s < ?", keyColumn), key)
	}

	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	page := &Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		page.NextCursor = EncodeCursor(page.Items[limit-1].PageKey())
	}
	return page, nil
}
