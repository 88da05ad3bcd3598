package model

// VersionInfo reports the running build, the applied schema migration and the
// indicator calculation versions this build can compute.
type VersionInfo struct {
	AppVersion        string          `json:"app_version"`
	DbVersion         string          `json:"db_version"`
	IndicatorVersions []string        `json:"indicator_versions"`
	Features          map[string]bool `json:"features"`
	MigrationNeeded   bool            `json:"migration_needed"`
	MigrationMessage  *string         `json:"migration_message,omitempty"`
}
