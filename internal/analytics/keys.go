package analytics

import (
	"time"
)

// Raw counters live outside the cache tier namespaces so that cache
// invalidation never touches them.
const (
	keyPrefix  = "hs:stats:"
	latencyKey = keyPrefix + "latency"
)

// Retention of the raw counters.
const (
	dailyRetention  = 90 * 24 * time.Hour
	hourlyRetention = 7 * 24 * time.Hour
	queryRetention  = 90 * 24 * time.Hour

	latencySampleSize = 1000
)

// Hash fields of the daily and hourly totals.
const (
	fieldTotal      = "total"
	fieldZero       = "zero"
	fieldSlow       = "slow"
	fieldLow        = "low"
	fieldResultsSum = "results_sum"
	fieldElapsedSum = "elapsed_sum"
	fieldCount      = "count"
	fieldLastSeen   = "last_seen"

	userTypeFieldPrefix = "user_type:"
	sourceFieldPrefix   = "source:"
)

func dayStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}

func dailyKey(t time.Time) string {
	return keyPrefix + "daily:" + dayStamp(t)
}

func hourlyKey(t time.Time) string {
	return keyPrefix + "hourly:" + t.UTC().Format("2006010215")
}

func queryKey(normalized string) string {
	return keyPrefix + "query:" + normalized
}

func queriesKey(t time.Time) string {
	return keyPrefix + "queries:" + dayStamp(t)
}

func zeroKey(t time.Time) string {
	return keyPrefix + "zero:" + dayStamp(t)
}

func slowKey(t time.Time) string {
	return keyPrefix + "slow:" + dayStamp(t)
}

// windowDays returns the days ending at end (inclusive), oldest first.
func windowDays(end time.Time, days int) []time.Time {
	end = end.UTC()
	out := make([]time.Time, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, end.AddDate(0, 0, -i))
	}
	return out
}

// windowHours returns the hours ending at end (inclusive), oldest first.
func windowHours(end time.Time, hours int) []time.Time {
	end = end.UTC().Truncate(time.Hour)
	out := make([]time.Time, 0, hours)
	for i := hours - 1; i >= 0; i-- {
		out = append(out, end.Add(-time.Duration(i)*time.Hour))
	}
	return out
}
