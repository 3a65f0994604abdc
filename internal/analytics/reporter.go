package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/productsearch/internal/domain"
	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

// Window bounds.
const (
	DefaultDays = 7
	MaxDays     = 90

	DefaultTrendingLimit = 10
	MaxTrendingLimit     = 50

	popularWindowDays = 30
	hourlySeriesHours = 24
	topListSize       = 10

	// maxGrowth caps the growth factor so brand-new queries do not dominate.
	maxGrowth = 3.0
)

// Trending periods.
const (
	TrendingDay   = "day"
	TrendingWeek  = "week"
	TrendingMonth = "month"
)

// JSONCache is the subset of the cache used to memoize reports.
type JSONCache interface {
	GetJSON(ctx context.Context, tier domain.CacheTier, key string, dest any) bool
	SetJSON(ctx context.Context, tier domain.CacheTier, key string, v any)
}

// Reporter builds dashboards and reports from the raw counters.
type Reporter struct {
	client *redis.Client
	cache  JSONCache
	logger *slog.Logger
	now    func() time.Time
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithCache memoizes reports in the ANALYTICS, TRENDING and POPULAR tiers.
func WithCache(c JSONCache) ReporterOption {
	return func(r *Reporter) { r.cache = c }
}

// WithClock overrides the reporter's notion of now.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a Reporter.
func NewReporter(client *redis.Client, logger *slog.Logger, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		client: client,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClampDays bounds a day window to [1, MaxDays]; zero selects DefaultDays.
func ClampDays(days int) int {
	switch {
	case days == 0:
		return DefaultDays
	case days < 1:
		return 1
	case days > MaxDays:
		return MaxDays
	}
	return days
}

// ClampTrendingLimit bounds a trending or popular limit.
func ClampTrendingLimit(limit int) int {
	switch {
	case limit < 1:
		return DefaultTrendingLimit
	case limit > MaxTrendingLimit:
		return MaxTrendingLimit
	}
	return limit
}

// Dashboard returns the metrics over the last days.
func (r *Reporter) Dashboard(ctx context.Context, days int) (*domain.DashboardMetrics, error) {
	days = ClampDays(days)
	cacheKey := "dashboard:" + strconv.Itoa(days)

	var cached domain.DashboardMetrics
	if r.cache != nil && r.cache.GetJSON(ctx, domain.TierAnalytics, cacheKey, &cached) {
		return &cached, nil
	}

	now := r.now().UTC()
	window := windowDays(now, days)

	daily, err := readTotals(ctx, r.client, dayKeys(window, dailyKey))
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	total := dailyTotals{UserTypes: map[string]int64{}, Sources: map[string]int64{}}
	for _, d := range daily {
		total.add(d)
	}

	hours := windowHours(now, hourlySeriesHours)
	hourly, err := readTotals(ctx, r.client, dayKeys(hours, hourlyKey))
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	series := make([]domain.HourlyPoint, len(hours))
	for i, h := range hours {
		series[i] = domain.HourlyPoint{
			Hour:        h,
			Searches:    hourly[i].Total,
			ZeroResults: hourly[i].Zero,
		}
		if hourly[i].Total > 0 {
			series[i].AvgResponseTimeMs = float64(hourly[i].ElapsedSum) / float64(hourly[i].Total)
		}
	}

	samples, err := r.latencySamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	trending, err := r.trending(ctx, now, days, topListSize)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	zero, err := sumRankings(ctx, r.client, dayKeys(window, zeroKey))
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	slow, err := sumRankings(ctx, r.client, dayKeys(window, slowKey))
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	metrics := &domain.DashboardMetrics{
		Days:           days,
		GeneratedAt:    now,
		Overview:       total.overview(),
		Trending:       trending,
		Performance:    percentiles(samples),
		ByUserType:     total.UserTypes,
		BySource:       total.Sources,
		Hourly:         series,
		ZeroResultTop:  topQueries(zero, topListSize),
		SlowQueriesTop: topQueries(slow, topListSize),
	}
	if r.cache != nil {
		r.cache.SetJSON(ctx, domain.TierAnalytics, cacheKey, metrics)
	}
	return metrics, nil
}

// QueryInsights returns the history and a rating of one query.
func (r *Reporter) QueryInsights(ctx context.Context, query string, days int) (*domain.QueryInsights, error) {
	q := domain.NormalizeQuery(query)
	if q == "" {
		return nil, apperrors.InvalidInput("query must not be empty")
	}
	days = ClampDays(days)
	window := windowDays(r.now(), days)

	hashes, err := readHashes(ctx, r.client, []string{queryKey(q)})
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	stats := hashes[0]
	rolling := parseTotals(stats)

	daily, err := r.queryDaily(ctx, q, window)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}

	insights := &domain.QueryInsights{
		Query:         q,
		Days:          days,
		TotalSearches: rolling.Total,
		Daily:         daily,
	}
	for _, d := range daily {
		insights.WindowSearches += d.Searches
	}
	if raw, ok := stats[fieldLastSeen]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			insights.LastSeen = &ts
		}
	}
	if rolling.Total > 0 {
		n := float64(rolling.Total)
		insights.ZeroResultRate = float64(rolling.Zero) / n
		insights.SlowRate = float64(rolling.Slow) / n
		insights.AvgResponseTimeMs = float64(rolling.ElapsedSum) / n
		insights.AvgResults = float64(rolling.ResultsSum) / n
	}
	insights.Rating = rateQuery(insights)
	insights.Suggestions = querySuggestions(insights.Rating)
	return insights, nil
}

func (r *Reporter) queryDaily(ctx context.Context, q string, window []time.Time) ([]domain.DailyPoint, error) {
	type dayCmds struct {
		searches, zero, slow *redis.FloatCmd
	}
	cmds := make([]dayCmds, len(window))
	// Members absent from a day's ranking answer redis.Nil, so errors are
	// checked per command.
	_, _ = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, d := range window {
			cmds[i] = dayCmds{
				searches: pipe.ZScore(ctx, queriesKey(d), q),
				zero:     pipe.ZScore(ctx, zeroKey(d), q),
				slow:     pipe.ZScore(ctx, slowKey(d), q),
			}
		}
		return nil
	})

	out := make([]domain.DailyPoint, len(window))
	for i, d := range window {
		for _, cmd := range []*redis.FloatCmd{cmds[i].searches, cmds[i].zero, cmds[i].slow} {
			if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
				return nil, fmt.Errorf("read daily query counts: %w", err)
			}
		}
		out[i] = domain.DailyPoint{
			Date:        d.Format("2006-01-02"),
			Searches:    int64(cmds[i].searches.Val()),
			ZeroResults: int64(cmds[i].zero.Val()),
			SlowQueries: int64(cmds[i].slow.Val()),
		}
	}
	return out, nil
}

func rateQuery(in *domain.QueryInsights) string {
	switch {
	case in.TotalSearches == 0:
		return domain.RatingNoData
	case in.AvgResponseTimeMs > domain.SlowQueryThresholdMs:
		return domain.RatingSlow
	case in.ZeroResultRate > 0.5:
		return domain.RatingPoorResults
	case in.AvgResults < domain.LowResultsThreshold:
		return domain.RatingLowResults
	}
	return domain.RatingExcellent
}

func querySuggestions(rating string) []string {
	switch rating {
	case domain.RatingSlow:
		return []string{
			"Responses are slow on average; warm the cache for this query",
			"Check whether broad filters force large candidate sets",
		}
	case domain.RatingPoorResults:
		return []string{
			"Most searches return nothing; add synonyms or catalog content for this query",
			"Review spelling variants and consider redirecting to a category",
		}
	case domain.RatingLowResults:
		return []string{
			"Few results on average; broaden matching or add related products",
		}
	case domain.RatingNoData:
		return []string{"No searches recorded for this query yet"}
	}
	return []string{"Query performs well; no action needed"}
}

// BusinessReport compares the latest period with the one before it.
func (r *Reporter) BusinessReport(ctx context.Context, period string) (*domain.BIReport, error) {
	days, ok := domain.PeriodDays(period)
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown report period %q", period))
	}

	now := r.now().UTC()
	current := windowDays(now, days)
	previous := windowDays(now.AddDate(0, 0, -days), days)

	curDaily, err := readTotals(ctx, r.client, dayKeys(current, dailyKey))
	if err != nil {
		return nil, fmt.Errorf("business report: %w", err)
	}
	prevDaily, err := readTotals(ctx, r.client, dayKeys(previous, dailyKey))
	if err != nil {
		return nil, fmt.Errorf("business report: %w", err)
	}

	cur := dailyTotals{UserTypes: map[string]int64{}, Sources: map[string]int64{}}
	series := make([]domain.DailyPoint, len(current))
	for i, d := range curDaily {
		cur.add(d)
		series[i] = domain.DailyPoint{
			Date:        current[i].Format("2006-01-02"),
			Searches:    d.Total,
			ZeroResults: d.Zero,
			SlowQueries: d.Slow,
		}
	}
	prev := dailyTotals{UserTypes: map[string]int64{}, Sources: map[string]int64{}}
	for _, d := range prevDaily {
		prev.add(d)
	}

	top, err := sumRankings(ctx, r.client, dayKeys(current, queriesKey))
	if err != nil {
		return nil, fmt.Errorf("business report: %w", err)
	}
	zero, err := sumRankings(ctx, r.client, dayKeys(current, zeroKey))
	if err != nil {
		return nil, fmt.Errorf("business report: %w", err)
	}
	slow, err := sumRankings(ctx, r.client, dayKeys(current, slowKey))
	if err != nil {
		return nil, fmt.Errorf("business report: %w", err)
	}

	report := &domain.BIReport{
		Period:            period,
		From:              current[0],
		To:                now,
		Overview:          cur.overview(),
		PreviousOverview:  prev.overview(),
		SearchGrowth:      growth(cur.Total, prev.Total),
		TopQueries:        topQueries(top, topListSize),
		ZeroResultQueries: topQueries(zero, topListSize),
		SlowQueries:       topQueries(slow, topListSize),
		Daily:             series,
	}
	report.Recommendations = recommendations(report)
	return report, nil
}

func recommendations(rep *domain.BIReport) []string {
	var out []string
	if rep.Overview.ZeroResultRate > 0.1 {
		out = append(out, fmt.Sprintf("%.0f%% of searches return nothing; start with the zero-result opportunities", rep.Overview.ZeroResultRate*100))
	}
	if rep.Overview.SlowQueryRate > 0.05 {
		out = append(out, "Slow queries exceed 5%; review the slow query list and cache warming")
	}
	if rep.SearchGrowth < 0 {
		out = append(out, "Search volume declined against the previous period")
	}
	if len(out) == 0 {
		out = append(out, "Search health is good; no action needed")
	}
	return out
}

// Trending ranks queries whose volume grew against the previous window of
// the same length.
func (r *Reporter) Trending(ctx context.Context, limit int, period string) ([]domain.TrendingQuery, error) {
	limit = ClampTrendingLimit(limit)
	days, err := trendingDays(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = TrendingDay
	}

	cacheKey := period + ":" + strconv.Itoa(limit)
	var cached []domain.TrendingQuery
	if r.cache != nil && r.cache.GetJSON(ctx, domain.TierTrending, cacheKey, &cached) {
		return cached, nil
	}

	out, err := r.trending(ctx, r.now().UTC(), days, limit)
	if err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}
	if r.cache != nil {
		r.cache.SetJSON(ctx, domain.TierTrending, cacheKey, out)
	}
	return out, nil
}

func trendingDays(period string) (int, error) {
	switch period {
	case "", TrendingDay:
		return 1, nil
	case TrendingWeek:
		return 7, nil
	case TrendingMonth:
		return 30, nil
	}
	return 0, apperrors.InvalidInput(fmt.Sprintf("unknown trending period %q", period))
}

func (r *Reporter) trending(ctx context.Context, now time.Time, days, limit int) ([]domain.TrendingQuery, error) {
	current, err := sumRankings(ctx, r.client, dayKeys(windowDays(now, days), queriesKey))
	if err != nil {
		return nil, err
	}
	previous, err := sumRankings(ctx, r.client, dayKeys(windowDays(now.AddDate(0, 0, -days), days), queriesKey))
	if err != nil {
		return nil, err
	}

	out := make([]domain.TrendingQuery, 0, len(current))
	for q, count := range current {
		if count <= 0 {
			continue
		}
		g := growth(count, previous[q])
		out = append(out, domain.TrendingQuery{
			Query:         q,
			Count:         count,
			PreviousCount: previous[q],
			Growth:        g,
			Score:         float64(count) * (1 + g),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// growth is the relative change from prev to cur, capped at maxGrowth. A
// query with no previous volume counts as maximal growth.
func growth(cur, prev int64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return maxGrowth
	}
	g := float64(cur-prev) / float64(prev)
	if g > maxGrowth {
		return maxGrowth
	}
	return g
}

// Popular ranks queries by volume over the rolling popular window.
func (r *Reporter) Popular(ctx context.Context, limit int) ([]domain.PopularQuery, error) {
	limit = ClampTrendingLimit(limit)
	cacheKey := "top:" + strconv.Itoa(limit)

	var cached []domain.PopularQuery
	if r.cache != nil && r.cache.GetJSON(ctx, domain.TierPopular, cacheKey, &cached) {
		return cached, nil
	}

	counts, err := sumRankings(ctx, r.client, dayKeys(windowDays(r.now(), popularWindowDays), queriesKey))
	if err != nil {
		return nil, fmt.Errorf("popular queries: %w", err)
	}
	out := topQueries(counts, limit)
	if r.cache != nil {
		r.cache.SetJSON(ctx, domain.TierPopular, cacheKey, out)
	}
	return out, nil
}

func (r *Reporter) latencySamples(ctx context.Context) ([]int64, error) {
	raw, err := r.client.LRange(ctx, latencyKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read latency sample: %w", err)
	}
	out := make([]int64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
