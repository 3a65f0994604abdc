package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/productsearch/internal/domain"
)

// dailyTotals is one parsed daily or hourly hash.
type dailyTotals struct {
	Total      int64
	Zero       int64
	Slow       int64
	Low        int64
	ResultsSum int64
	ElapsedSum int64
	UserTypes  map[string]int64
	Sources    map[string]int64
}

func parseTotals(h map[string]string) dailyTotals {
	t := dailyTotals{
		UserTypes: map[string]int64{},
		Sources:   map[string]int64{},
	}
	for field, raw := range h {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == fieldTotal, field == fieldCount:
			t.Total += v
		case field == fieldZero:
			t.Zero = v
		case field == fieldSlow:
			t.Slow = v
		case field == fieldLow:
			t.Low = v
		case field == fieldResultsSum:
			t.ResultsSum = v
		case field == fieldElapsedSum:
			t.ElapsedSum = v
		case strings.HasPrefix(field, userTypeFieldPrefix):
			t.UserTypes[strings.TrimPrefix(field, userTypeFieldPrefix)] = v
		case strings.HasPrefix(field, sourceFieldPrefix):
			t.Sources[strings.TrimPrefix(field, sourceFieldPrefix)] = v
		}
	}
	return t
}

func (t *dailyTotals) add(o dailyTotals) {
	t.Total += o.Total
	t.Zero += o.Zero
	t.Slow += o.Slow
	t.Low += o.Low
	t.ResultsSum += o.ResultsSum
	t.ElapsedSum += o.ElapsedSum
	for k, v := range o.UserTypes {
		t.UserTypes[k] += v
	}
	for k, v := range o.Sources {
		t.Sources[k] += v
	}
}

func (t dailyTotals) overview() domain.Overview {
	o := domain.Overview{
		TotalSearches:   t.Total,
		ZeroResultCount: t.Zero,
		SlowQueryCount:  t.Slow,
		LowResultCount:  t.Low,
	}
	if t.Total == 0 {
		return o
	}
	total := float64(t.Total)
	o.ZeroResultRate = float64(t.Zero) / total
	o.SuccessRate = 1 - o.ZeroResultRate
	o.SlowQueryRate = float64(t.Slow) / total
	o.AvgResponseTimeMs = float64(t.ElapsedSum) / total
	o.AvgResults = float64(t.ResultsSum) / total
	return o
}

// readHashes loads the hashes in one round trip. Missing keys yield empty maps.
func readHashes(ctx context.Context, client *redis.Client, keys []string) ([]map[string]string, error) {
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read hashes: %w", err)
	}
	out := make([]map[string]string, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// readTotals loads and parses the totals of each key, in key order.
func readTotals(ctx context.Context, client *redis.Client, keys []string) ([]dailyTotals, error) {
	hashes, err := readHashes(ctx, client, keys)
	if err != nil {
		return nil, err
	}
	out := make([]dailyTotals, len(hashes))
	for i, h := range hashes {
		out[i] = parseTotals(h)
	}
	return out, nil
}

// sumRankings adds up the member scores of several sorted sets.
func sumRankings(ctx context.Context, client *redis.Client, keys []string) (map[string]int64, error) {
	cmds := make([]*redis.ZSliceCmd, len(keys))
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.ZRangeWithScores(ctx, key, 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read rankings: %w", err)
	}
	sums := make(map[string]int64)
	for _, cmd := range cmds {
		for _, z := range cmd.Val() {
			member, ok := z.Member.(string)
			if !ok {
				continue
			}
			sums[member] += int64(z.Score)
		}
	}
	return sums, nil
}

// topQueries returns the n members with the highest counts, ties broken
// alphabetically.
func topQueries(counts map[string]int64, n int) []domain.PopularQuery {
	out := make([]domain.PopularQuery, 0, len(counts))
	for q, c := range counts {
		if c > 0 {
			out = append(out, domain.PopularQuery{Query: q, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func dayKeys(days []time.Time, keyFn func(time.Time) string) []string {
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = keyFn(d)
	}
	return keys
}

// nearestRank returns the p-th percentile of sorted using the nearest-rank
// method. sorted must be ascending.
func nearestRank(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted)) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func percentiles(samples []int64) domain.Percentiles {
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return domain.Percentiles{
		P50:        nearestRank(sorted, 50),
		P95:        nearestRank(sorted, 95),
		P99:        nearestRank(sorted, 99),
		SampleSize: len(sorted),
	}
}
