package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/market-data-store/internal/database"
	"github.com/ndewijer/market-data-store/internal/indicator"
	"github.com/ndewijer/market-data-store/internal/model"
)

// Version is the application version, overridden at build time with
// -ldflags "-X github.com/ndewijer/market-data-store/internal/service.Version=...".
var Version = "dev"

// SystemService handles system-related operations
type SystemService struct {
	db *sql.DB
}

// NewSystemService creates a new SystemService
func NewSystemService(db *sql.DB) *SystemService {
	return &SystemService{
		db: db,
	}
}

// CheckHealth checks the health of the system
func (s *SystemService) CheckHealth(ctx context.Context) error {
	return database.HealthCheck(ctx, s.db)
}

// CheckVersion reports the application version, the applied schema version and
// the registered indicator versions.
func (s *SystemService) CheckVersion(ctx context.Context) (model.VersionInfo, error) {
	dbVersion, pending, err := database.SchemaStatus(ctx, s.db)
	if err != nil {
		return model.VersionInfo{}, fmt.Errorf("failed to read schema status: %w", err)
	}

	features := map[string]bool{
		"index_memberships":    dbVersion >= 4,
		"versioned_indicators": dbVersion >= 3,
		"quality_score":        dbVersion >= 2,
	}
	versions := indicator.Versions()
	for _, v := range versions {
		features["indicators_"+v] = true
	}

	info := model.VersionInfo{
		AppVersion:        Version,
		DbVersion:         fmt.Sprintf("%d", dbVersion),
		IndicatorVersions: versions,
		Features:          features,
		MigrationNeeded:   pending,
	}
	if pending {
		msg := "database schema is behind; run 'marketdata migrate'"
		info.MigrationMessage = &msg
	}
	return info, nil
}
