package model

import "time"

// IndexMembership records that an asset is, or was, a constituent of an index.
// Memberships are deactivated, never deleted, when a symbol leaves the index.
type IndexMembership struct {
	Symbol    string    `json:"symbol"`
	IndexName string    `json:"indexName"`
	AddedDate time.Time `json:"addedDate"`
	IsActive  bool      `json:"isActive"`
}

// IndexSyncResult summarizes one constituent sync.
type IndexSyncResult struct {
	IndexName     string   `json:"indexName"`
	AssetsCreated []string `json:"assetsCreated"`
	Added         []string `json:"added"`
	Removed       []string `json:"removed"`
	Deactivated   []string `json:"deactivated"`
	Unchanged     int      `json:"unchanged"`
}
