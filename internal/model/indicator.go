package model

import "time"

// IndicatorValue is one cached indicator result, unique per (Symbol, Date, Name, Version).
type IndicatorValue struct {
	Symbol       string    `json:"symbol"`
	Date         time.Time `json:"date"`
	Name         string    `json:"indicatorName"`
	Value        float64   `json:"value"`
	Version      string    `json:"calculationVersion"`
	CalculatedAt time.Time `json:"calculatedAt,omitzero"`
}
