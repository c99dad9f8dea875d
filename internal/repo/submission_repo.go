// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the submission store: insert, filtered
// select, conditional update and delete over the submissions table.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no lifecycle rules live here, only persistence and query
// composition. The transition table is enforced by services.
//
// Error semantics:
//   - GetSubmission returns ErrNotFound when the row does not exist.
//   - Update and delete report affected rows; zero rows is not an error here.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrEmptyFilter guards update and delete against whole-table writes.
var ErrEmptyFilter = errors.New("filter must name a submission id")

// SubmissionFilter selects submissions by equality. Zero-valued fields are
// ignored. Results are always ordered newest first.
type SubmissionFilter struct {
	ID          string
	Status      domain.Status
	SubmittedBy string
	Limit       int
	Offset      int
}

// StatusPatch is the set of columns a lifecycle transition writes.
type StatusPatch struct {
	Status      domain.Status
	ReviewedAt  time.Time
	ReviewedBy  string
	ReviewNotes string
}

func (f SubmissionFilter) apply(q *gorm.DB) *gorm.DB {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SubmittedBy != "" {
		q = q.Where("submitted_by = ?", f.SubmittedBy)
	}
	return q
}

// InsertSubmission persists s. A UUID is assigned when s.ID is empty and
// CreatedAt is stamped in UTC when unset. The status always starts pending
// unless the caller set one explicitly (tests and seeding).
func InsertSubmission(ctx context.Context, db *gorm.DB, s *domain.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = domain.StatusPending
	}
	return db.WithContext(ctx).Create(s).Error
}

// SelectSubmissions returns rows matching f ordered by created_at descending.
// Ties on created_at are broken by id so that the order is stable across calls.
func SelectSubmissions(ctx context.Context, db *gorm.DB, f SubmissionFilter) ([]domain.Submission, error) {
	q := f.apply(db.WithContext(ctx).Model(&domain.Submission{})).
		Order("created_at desc").
		Order("id desc")
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	out := []domain.Submission{}
	err := q.Find(&out).Error
	return out, err
}

// GetSubmission fetches one submission by id, or ErrNotFound.
func GetSubmission(ctx context.Context, db *gorm.DB, id string) (*domain.Submission, error) {
	var s domain.Submission
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSubmissionStatus writes patch to the row identified by id, but only
// while the row still has status expect. It returns the number of affected
// rows: 0 means the row is gone or another writer moved it first.
func UpdateSubmissionStatus(ctx context.Context, db *gorm.DB, id string, expect domain.Status, patch StatusPatch) (int64, error) {
	if id == "" {
		return 0, ErrEmptyFilter
	}
	res := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id = ? AND status = ?", id, expect).
		Updates(map[string]any{
			"status":       patch.Status,
			"reviewed_at":  patch.ReviewedAt,
			"reviewed_by":  patch.ReviewedBy,
			"review_notes": patch.ReviewNotes,
			"updated_at":   time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteSubmission hard-deletes the row with the given id and reports whether
// a row was removed.
func DeleteSubmission(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	if id == "" {
		return 0, ErrEmptyFilter
	}
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Submission{})
	return res.RowsAffected, res.Error
}

// CountSubmissions returns the number of rows matching f (limit/offset ignored).
func CountSubmissions(ctx context.Context, db *gorm.DB, f SubmissionFilter) (int64, error) {
	var n int64
	f.Limit, f.Offset = 0, 0
	err := f.apply(db.WithContext(ctx).Model(&domain.Submission{})).Count(&n).Error
	return n, err
}

// CountByStatus returns the number of submissions in every lifecycle state.
// States without rows are reported as zero.
func CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Status]int64, 4)
	for _, s := range domain.Statuses() {
		out[s] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
