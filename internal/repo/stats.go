// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on admin list endpoints.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// SubmissionsStats returns the number of submissions in status and the
// greatest UpdatedAt among them. An empty status covers every row. When no
// rows match, count is 0 and maxUpdatedAt is nil.
func SubmissionsStats(ctx context.Context, db *gorm.DB, status domain.Status) (count int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.Submission{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
