package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/testutil"
)

func TestQualityHandler_Anomalies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := NewQualityHandler(testutil.NewTestQualityService(t, db))

	detected := time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)
	err := repository.NewQualityRepository(db).InsertAnomalies(context.Background(), []model.QualityAnomaly{
		{Symbol: "AAPL", Date: testutil.MustDate("2025-01-12"), IssueType: model.IssueOutlier, Severity: model.SeverityMedium, Description: "close moved 33.3%", DetectedAt: detected},
		{Symbol: "XYZ", Date: testutil.MustDate("2025-01-13"), IssueType: model.IssueFetchError, Severity: model.SeverityMedium, Description: "timeout", DetectedAt: detected},
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("filters by symbol", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Anomalies(w, testutil.NewRequestWithQueryParams(http.MethodGet, "/api/quality", map[string]string{"symbol": "aapl"}))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var anomalies []model.QualityAnomaly
		if err := json.NewDecoder(w.Body).Decode(&anomalies); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(anomalies) != 1 || anomalies[0].IssueType != model.IssueOutlier {
			t.Errorf("Unexpected anomalies %+v", anomalies)
		}
	})

	t.Run("filters by issue type", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Anomalies(w, testutil.NewRequestWithQueryParams(http.MethodGet, "/api/quality", map[string]string{"issue_type": "fetch_error"}))

		var anomalies []model.QualityAnomaly
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&anomalies)
		if len(anomalies) != 1 || anomalies[0].Symbol != "XYZ" {
			t.Errorf("Unexpected anomalies %+v", anomalies)
		}
	})

	t.Run("returns 400 for unknown issue type", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Anomalies(w, testutil.NewRequestWithQueryParams(http.MethodGet, "/api/quality", map[string]string{"issue_type": "glitch"}))

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}
