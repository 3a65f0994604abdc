package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Classification thresholds applied when an event is created.
const (
	SlowQueryThresholdMs = 2000
	LowResultsThreshold  = 5
)

// Query sources.
const (
	SourceWeb    = "web"
	SourceMobile = "mobile"
	SourceAPI    = "api"
	SourceWarmup = "warmup"
)

// AnalyticsEvent records one served search. It is write-once.
type AnalyticsEvent struct {
	EventID        string            `json:"event_id"`
	Query          string            `json:"query"`
	UserID         string            `json:"user_id,omitempty"`
	UserType       string            `json:"user_type,omitempty"`
	ResultsCount   int               `json:"results_count"`
	ElapsedMs      int64             `json:"elapsed_ms"`
	Filters        map[string]string `json:"filters,omitempty"`
	Page           int               `json:"page"`
	Source         string            `json:"source"`
	Timestamp      time.Time         `json:"timestamp"`
	HasResults     bool              `json:"has_results"`
	IsSlow         bool              `json:"is_slow"`
	IsZeroResults  bool              `json:"is_zero_results"`
	IsLowResults   bool              `json:"is_low_results"`
	CacheHit       bool              `json:"cache_hit"`
	DegradedResult bool              `json:"degraded_result"`
}

// EventInput carries the raw facts of a served search.
type EventInput struct {
	Query        string
	UserID       string
	UserType     string
	ResultsCount int
	ElapsedMs    int64
	Filters      map[string]string
	Page         int
	Source       string
	CacheHit     bool
	Degraded     bool
	Timestamp    time.Time
}

// NewAnalyticsEvent builds an event and classifies it against the slow and
// low-result thresholds.
func NewAnalyticsEvent(in EventInput) AnalyticsEvent {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	source := in.Source
	if source == "" {
		source = SourceAPI
	}
	userType := in.UserType
	if userType == "" {
		if in.UserID == "" {
			userType = "anonymous"
		} else {
			userType = "registered"
		}
	}
	return AnalyticsEvent{
		EventID:        uuid.New().String(),
		Query:          in.Query,
		UserID:         in.UserID,
		UserType:       userType,
		ResultsCount:   in.ResultsCount,
		ElapsedMs:      in.ElapsedMs,
		Filters:        in.Filters,
		Page:           in.Page,
		Source:         source,
		Timestamp:      ts.UTC(),
		HasResults:     in.ResultsCount > 0,
		IsSlow:         in.ElapsedMs > SlowQueryThresholdMs,
		IsZeroResults:  in.ResultsCount == 0,
		IsLowResults:   in.ResultsCount > 0 && in.ResultsCount < LowResultsThreshold,
		CacheHit:       in.CacheHit,
		DegradedResult: in.Degraded,
	}
}

// NormalizeQuery lowercases and collapses whitespace so equivalent queries
// aggregate together.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// Overview summarizes a window of daily buckets.
type Overview struct {
	TotalSearches     int64   `json:"total_searches"`
	ZeroResultCount   int64   `json:"zero_result_count"`
	SlowQueryCount    int64   `json:"slow_query_count"`
	LowResultCount    int64   `json:"low_result_count"`
	SuccessRate       float64 `json:"success_rate"`
	ZeroResultRate    float64 `json:"zero_result_rate"`
	SlowQueryRate     float64 `json:"slow_query_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgResults        float64 `json:"avg_results"`
}

// TrendingQuery is a query whose volume grew against the previous window.
type TrendingQuery struct {
	Query         string  `json:"query"`
	Count         int64   `json:"count"`
	PreviousCount int64   `json:"previous_count"`
	Growth        float64 `json:"growth"`
	Score         float64 `json:"score"`
}

// PopularQuery is a query ranked by raw volume.
type PopularQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Percentiles are latency percentiles over the rolling sample.
type Percentiles struct {
	P50        int64 `json:"p50"`
	P95        int64 `json:"p95"`
	P99        int64 `json:"p99"`
	SampleSize int   `json:"sample_size"`
}

// HourlyPoint is one bucket of the hourly series.
type HourlyPoint struct {
	Hour              time.Time `json:"hour"`
	Searches          int64     `json:"searches"`
	ZeroResults       int64     `json:"zero_results"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
}

// DailyPoint is one bucket of a daily series.
type DailyPoint struct {
	Date        string `json:"date"`
	Searches    int64  `json:"searches"`
	ZeroResults int64  `json:"zero_results"`
	SlowQueries int64  `json:"slow_queries"`
}

// DashboardMetrics is the analytics dashboard for a window of days.
type DashboardMetrics struct {
	Days           int              `json:"days"`
	GeneratedAt    time.Time        `json:"generated_at"`
	Overview       Overview         `json:"overview"`
	Trending       []TrendingQuery  `json:"trending"`
	Performance    Percentiles      `json:"performance"`
	ByUserType     map[string]int64 `json:"by_user_type"`
	BySource       map[string]int64 `json:"by_source"`
	Hourly         []HourlyPoint    `json:"hourly"`
	ZeroResultTop  []PopularQuery   `json:"zero_result_queries"`
	SlowQueriesTop []PopularQuery   `json:"slow_queries"`
}

// Query performance ratings.
const (
	RatingSlow        = "slow"
	RatingPoorResults = "poor_results"
	RatingLowResults  = "low_results"
	RatingExcellent   = "excellent"
	RatingNoData      = "no_data"
)

// QueryInsights is the historical performance of one query.
type QueryInsights struct {
	Query             string       `json:"query"`
	Days              int          `json:"days"`
	TotalSearches     int64        `json:"total_searches"`
	WindowSearches    int64        `json:"window_searches"`
	ZeroResultRate    float64      `json:"zero_result_rate"`
	SlowRate          float64      `json:"slow_rate"`
	AvgResponseTimeMs float64      `json:"avg_response_time_ms"`
	AvgResults        float64      `json:"avg_results"`
	LastSeen          *time.Time   `json:"last_seen,omitempty"`
	Rating            string       `json:"rating"`
	Suggestions       []string     `json:"suggestions"`
	Daily             []DailyPoint `json:"daily"`
}

// Report periods.
const (
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
)

// PeriodDays maps a report period to its window length.
func PeriodDays(period string) (int, bool) {
	switch period {
	case PeriodWeek:
		return 7, true
	case PeriodMonth:
		return 30, true
	case PeriodQuarter:
		return 90, true
	}
	return 0, false
}

// BIReport is the business-intelligence report for a period.
type BIReport struct {
	Period            string         `json:"period"`
	From              time.Time      `json:"from"`
	To                time.Time      `json:"to"`
	Overview          Overview       `json:"overview"`
	PreviousOverview  Overview       `json:"previous_overview"`
	SearchGrowth      float64        `json:"search_growth"`
	TopQueries        []PopularQuery `json:"top_queries"`
	ZeroResultQueries []PopularQuery `json:"zero_result_opportunities"`
	SlowQueries       []PopularQuery `json:"slow_queries"`
	Daily             []DailyPoint   `json:"daily"`
	Recommendations   []string       `json:"recommendations"`
}
