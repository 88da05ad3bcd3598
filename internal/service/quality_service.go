package service

import (
	"context"
	"fmt"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
)

// MaxQualityLimit caps the number of anomalies returned by one query.
const MaxQualityLimit = 1000

// QualityService gives read access to the data_quality_log.
type QualityService struct {
	qualityRepo *repository.QualityRepository
}

// NewQualityService creates a new QualityService with the provided repository dependencies.
func NewQualityService(qualityRepo *repository.QualityRepository) *QualityService {
	return &QualityService{
		qualityRepo: qualityRepo,
	}
}

// GetAnomalies returns anomalies newest first. A zero limit means MaxQualityLimit.
func (s *QualityService) GetAnomalies(ctx context.Context, filters model.QualityFilters) ([]model.QualityAnomaly, error) {
	if filters.IssueType != "" && !model.ValidIssueTypes[filters.IssueType] {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidIssueType, filters.IssueType)
	}
	if filters.Limit <= 0 || filters.Limit > MaxQualityLimit {
		filters.Limit = MaxQualityLimit
	}
	return readRetry(ctx, func(ctx context.Context) ([]model.QualityAnomaly, error) {
		return s.qualityRepo.GetAnomalies(ctx, filters)
	})
}
