package model

import "time"

// UpdateFrequency is the expected refresh cadence of an asset.
type UpdateFrequency string

const (
	FrequencyDaily   UpdateFrequency = "daily"
	FrequencyWeekly  UpdateFrequency = "weekly"
	FrequencyMonthly UpdateFrequency = "monthly"
)

// ValidUpdateFrequencies lists the accepted update_frequency values.
var ValidUpdateFrequencies = map[UpdateFrequency]bool{
	FrequencyDaily:   true,
	FrequencyWeekly:  true,
	FrequencyMonthly: true,
}

// Interval returns the minimum age of the newest bar before the asset is due again.
func (f UpdateFrequency) Interval() time.Duration {
	switch f {
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 28 * 24 * time.Hour
	default:
		return 0
	}
}

// Asset represents an instrument row from asset_metadata.
// FirstDate and LastDate are zero when no bars are stored.
type Asset struct {
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	AssetType       string          `json:"assetType"`
	Exchange        string          `json:"exchange"`
	Sector          string          `json:"sector"`
	Industry        string          `json:"industry"`
	Currency        string          `json:"currency"`
	FirstDate       time.Time       `json:"firstDate,omitzero"`
	LastDate        time.Time       `json:"lastDate,omitzero"`
	IsActive        bool            `json:"isActive"`
	UpdateFrequency UpdateFrequency `json:"updateFrequency"`
	Notes           string          `json:"notes,omitempty"`
	Timeframe       string          `json:"timeframe"`
	AssetGroup      string          `json:"assetGroup,omitempty"`
	HasOHLC         bool            `json:"hasOhlc"`
	HasVolume       bool            `json:"hasVolume"`
	QualityScore    float64         `json:"dataQualityScore"`
	CreatedAt       time.Time       `json:"createdAt,omitzero"`
	UpdatedAt       time.Time       `json:"updatedAt,omitzero"`
}

// IsDue reports whether the asset should be fetched at now given its cadence.
// Assets without stored bars are always due.
func (a Asset) IsDue(now time.Time) bool {
	if a.LastDate.IsZero() {
		return true
	}
	return !TruncateDay(now).Before(a.LastDate.Add(a.UpdateFrequency.Interval()))
}

// AssetCoverage is the aggregate over a symbol's stored bars used to refresh asset_metadata.
type AssetCoverage struct {
	FirstDate    time.Time
	LastDate     time.Time
	Bars         int
	OKBars       int
	VolumeBars   int
	CompleteOHLC bool
}

// QualityScore is the mean of the share of bars flagged ok and the share of bars with volume.
func (c AssetCoverage) QualityScore() float64 {
	if c.Bars == 0 {
		return 0
	}
	total := float64(c.Bars)
	return (float64(c.OKBars)/total + float64(c.VolumeBars)/total) / 2
}
