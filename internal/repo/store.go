package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// SubmissionStore binds the submission free functions to a database handle so
// it can be injected wherever services expect a store.
type SubmissionStore struct {
	DB *gorm.DB
}

// NewSubmissionStore returns a store over db.
func NewSubmissionStore(db *gorm.DB) *SubmissionStore { return &SubmissionStore{DB: db} }

// Insert proxies InsertSubmission.
func (s *SubmissionStore) Insert(ctx context.Context, sub *domain.Submission) error {
	return InsertSubmission(ctx, s.DB, sub)
}

// Select proxies SelectSubmissions.
func (s *SubmissionStore) Select(ctx context.Context, f SubmissionFilter) ([]domain.Submission, error) {
	return SelectSubmissions(ctx, s.DB, f)
}

// Get proxies GetSubmission.
func (s *SubmissionStore) Get(ctx context.Context, id string) (*domain.Submission, error) {
	return GetSubmission(ctx, s.DB, id)
}

// UpdateStatus proxies UpdateSubmissionStatus.
func (s *SubmissionStore) UpdateStatus(ctx context.Context, id string, expect domain.Status, patch StatusPatch) (int64, error) {
	return UpdateSubmissionStatus(ctx, s.DB, id, expect, patch)
}

// Delete proxies DeleteSubmission.
func (s *SubmissionStore) Delete(ctx context.Context, id string) (int64, error) {
	return DeleteSubmission(ctx, s.DB, id)
}

// Count proxies CountSubmissions.
func (s *SubmissionStore) Count(ctx context.Context, f SubmissionFilter) (int64, error) {
	return CountSubmissions(ctx, s.DB, f)
}

// CountByStatus proxies CountByStatus.
func (s *SubmissionStore) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	return CountByStatus(ctx, s.DB)
}
