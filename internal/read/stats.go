package read

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/redgrouse/backend/internal/filter"
)

// StatsTotals is the headline-number block of a stats response.
type StatsTotals struct {
	Sightings    int64 `json:"sightings"`
	Lifers       int64 `json:"lifers"`
	YearTicks    int64 `json:"year_ticks"`
	CountryTicks int64 `json:"country_ticks"`
	Species      int64 `json:"species"`
	Countries    int64 `json:"countries"`
	Regions      int64 `json:"regions"`
	Individuals  int64 `json:"individuals"`
}

// TopSpecies is one row of the top-20-by-count table.
type TopSpecies struct {
	CommonName     string `json:"common_name"`
	ScientificName string `json:"scientific_name"`
	Count          int64  `json:"count"`
}

// CountryStat is one row of the per-country breakdown.
type CountryStat struct {
	CountryCode string `json:"country_code"`
	Sightings   int64  `json:"sightings"`
	Lifers      int64  `json:"lifers"`
}

// TimelinePoint is one day of the densified cumulative timeline.
type TimelinePoint struct {
	Date                string `json:"date"`
	CumulativeSightings int64  `json:"cumulative_sightings"`
	CumulativeLifers    int64  `json:"cumulative_lifers"`
}

// StatsResult is the full compound stats read.
type StatsResult struct {
	Totals            StatsTotals     `json:"totals"`
	FirstObservedAt   string          `json:"first_observed_at"`
	LatestObservedAt  string          `json:"latest_observed_at"`
	TopSpecies        []TopSpecies    `json:"top_species"`
	Countries         []CountryStat   `json:"countries"`
	BirdingMinutes    int64           `json:"birding_minutes"`
	Timeline          []TimelinePoint `json:"timeline"`
	LongestStreakDays int             `json:"longest_streak_days"`
}

// whereSuffix composes the shared filter and tick-visibility clause/args
// appended to every stats sub-query's "WHERE s.upload_id = ?" fragment, so
// every number in the response reflects the same filtered, tick-visible
// subset of rows.
func whereSuffix(f filter.SQL, tick filter.TickVisibility) (string, []any) {
	clause := f.Clause
	args := append([]any{}, f.Args...)

	tickClause, tickArgs := tick.Compile()
	clause += tickClause
	args = append(args, tickArgs...)

	return clause, args
}

// Stats runs the compound per-upload stats read: totals, extremes, top
// species, per-country breakdown, the birding-time heuristic, a densified
// cumulative timeline, and the longest consecutive-day streak. f and tick
// restrict every sub-query to the same filtered, tick-visible subset of
// rows that List and Count apply to the sightings listing.
func Stats(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility) (StatsResult, error) {
	var result StatsResult

	if err := loadTotals(ctx, db, uploadID, f, tick, &result); err != nil {
		return StatsResult{}, err
	}
	if err := loadExtremes(ctx, db, uploadID, f, tick, &result); err != nil {
		return StatsResult{}, err
	}
	if err := loadTopSpecies(ctx, db, uploadID, f, tick, &result); err != nil {
		return StatsResult{}, err
	}
	if err := loadCountries(ctx, db, uploadID, f, tick, &result); err != nil {
		return StatsResult{}, err
	}

	distinctTimes, err := distinctObservedAt(ctx, db, uploadID, f, tick)
	if err != nil {
		return StatsResult{}, err
	}
	result.BirdingMinutes = birdingMinutesHeuristic(distinctTimes)

	dailyCounts, err := loadDailyCounts(ctx, db, uploadID, f, tick)
	if err != nil {
		return StatsResult{}, err
	}
	result.Timeline = densifyTimeline(dailyCounts)
	result.LongestStreakDays = longestStreak(dailyCounts)

	return result, nil
}

func loadTotals(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility, out *StatsResult) error {
	join := ""
	if f.SpeciesJoin {
		join = " JOIN species sp ON s.species_id = sp.id"
	}
	suffix, args := whereSuffix(f, tick)

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(s.lifer), 0),
			COALESCE(SUM(s.year_tick), 0),
			COALESCE(SUM(s.country_tick), 0),
			COUNT(DISTINCT s.species_id),
			COUNT(DISTINCT CASE WHEN s.country_code != 'XX' THEN s.country_code END),
			COUNT(DISTINCT s.region_code),
			COALESCE(SUM(s.count), 0)
		FROM sightings s` + join + `
		WHERE s.upload_id = ?` + suffix

	row := db.QueryRowContext(ctx, query, append([]any{uploadID}, args...)...)

	var t StatsTotals
	if err := row.Scan(&t.Sightings, &t.Lifers, &t.YearTicks, &t.CountryTicks,
		&t.Species, &t.Countries, &t.Regions, &t.Individuals); err != nil {
		return err
	}
	out.Totals = t
	return nil
}

func loadExtremes(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility, out *StatsResult) error {
	join := ""
	if f.SpeciesJoin {
		join = " JOIN species sp ON s.species_id = sp.id"
	}
	suffix, args := whereSuffix(f, tick)

	query := `SELECT MIN(s.observed_at), MAX(s.observed_at) FROM sightings s` + join + ` WHERE s.upload_id = ?` + suffix

	var first, latest sql.NullString
	row := db.QueryRowContext(ctx, query, append([]any{uploadID}, args...)...)
	if err := row.Scan(&first, &latest); err != nil {
		return err
	}
	out.FirstObservedAt = first.String
	out.LatestObservedAt = latest.String
	return nil
}

func loadTopSpecies(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility, out *StatsResult) error {
	// Always joins species regardless of f.SpeciesJoin: the projection
	// itself needs sp.common_name/sp.scientific_name.
	suffix, args := whereSuffix(f, tick)

	query := `
		SELECT sp.common_name, sp.scientific_name, SUM(s.count) AS total
		FROM sightings s JOIN species sp ON s.species_id = sp.id
		WHERE s.upload_id = ?` + suffix + `
		GROUP BY sp.id
		ORDER BY total DESC
		LIMIT 20`

	rows, err := db.QueryContext(ctx, query, append([]any{uploadID}, args...)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TopSpecies
		if err := rows.Scan(&ts.CommonName, &ts.ScientificName, &ts.Count); err != nil {
			return err
		}
		out.TopSpecies = append(out.TopSpecies, ts)
	}
	return rows.Err()
}

func loadCountries(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility, out *StatsResult) error {
	join := ""
	if f.SpeciesJoin {
		join = " JOIN species sp ON s.species_id = sp.id"
	}
	suffix, args := whereSuffix(f, tick)

	query := `
		SELECT s.country_code, COUNT(*), SUM(s.lifer)
		FROM sightings s` + join + `
		WHERE s.upload_id = ?` + suffix + `
		GROUP BY s.country_code
		ORDER BY 2 DESC`

	rows, err := db.QueryContext(ctx, query, append([]any{uploadID}, args...)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c CountryStat
		if err := rows.Scan(&c.CountryCode, &c.Sightings, &c.Lifers); err != nil {
			return err
		}
		out.Countries = append(out.Countries, c)
	}
	return rows.Err()
}

func distinctObservedAt(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility) ([]string, error) {
	join := ""
	if f.SpeciesJoin {
		join = " JOIN species sp ON s.species_id = sp.id"
	}
	suffix, args := whereSuffix(f, tick)

	query := `SELECT DISTINCT s.observed_at FROM sightings s` + join + ` WHERE s.upload_id = ?` + suffix

	rows, err := db.QueryContext(ctx, query, append([]any{uploadID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// birdingMinutesHeuristic buckets the time-of-day of every distinct
// observed_at value into 10-minute windows and multiplies the number of
// occupied buckets by 10. Uncalibrated against ground truth — preserved
// as-is per policy, not a claim of accuracy.
func birdingMinutesHeuristic(observedAtValues []string) int64 {
	buckets := make(map[int]struct{})
	for _, v := range observedAtValues {
		minute, ok := timeOfDayMinute(v)
		if !ok {
			continue
		}
		buckets[minute/10] = struct{}{}
	}
	return int64(len(buckets)) * 10
}

// timeOfDayMinute extracts minutes-since-midnight from an ISO-8601-ish
// timestamp's "T" time component.
func timeOfDayMinute(observedAt string) (int, bool) {
	idx := -1
	for i, c := range observedAt {
		if c == 'T' {
			idx = i
			break
		}
	}
	if idx < 0 || idx+6 > len(observedAt) {
		return 0, false
	}
	t, err := time.Parse("15:04", observedAt[idx+1:idx+6])
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

type dailyCount struct {
	date      string
	sightings int64
	lifers    int64
}

func loadDailyCounts(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility) ([]dailyCount, error) {
	join := ""
	if f.SpeciesJoin {
		join = " JOIN species sp ON s.species_id = sp.id"
	}
	suffix, args := whereSuffix(f, tick)

	query := `
		SELECT DATE(s.observed_at) AS day, COUNT(*), SUM(s.lifer)
		FROM sightings s` + join + `
		WHERE s.upload_id = ?` + suffix + `
		GROUP BY day
		ORDER BY day`

	rows, err := db.QueryContext(ctx, query, append([]any{uploadID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dailyCount
	for rows.Next() {
		var d dailyCount
		var day sql.NullString
		if err := rows.Scan(&day, &d.sightings, &d.lifers); err != nil {
			return nil, err
		}
		if !day.Valid {
			continue
		}
		d.date = day.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// densifyTimeline fills every day between the first and last observation
// with a cumulative sightings/lifers count, even days with no new rows.
func densifyTimeline(counts []dailyCount) []TimelinePoint {
	if len(counts) == 0 {
		return nil
	}
	byDate := make(map[string]dailyCount, len(counts))
	for _, c := range counts {
		byDate[c.date] = c
	}

	start, err1 := time.Parse("2006-01-02", counts[0].date)
	end, err2 := time.Parse("2006-01-02", counts[len(counts)-1].date)
	if err1 != nil || err2 != nil {
		return nil
	}

	var out []TimelinePoint
	var cumSightings, cumLifers int64
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		if c, ok := byDate[key]; ok {
			cumSightings += c.sightings
			cumLifers += c.lifers
		}
		out = append(out, TimelinePoint{
			Date:                key,
			CumulativeSightings: cumSightings,
			CumulativeLifers:    cumLifers,
		})
	}
	return out
}

// longestStreak finds the longest run of consecutive calendar days with at
// least one sighting.
func longestStreak(counts []dailyCount) int {
	if len(counts) == 0 {
		return 0
	}
	dates := make([]time.Time, 0, len(counts))
	for _, c := range counts {
		d, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	best, current := 1, 1
	for i := 1; i < len(dates); i++ {
		if dates[i].Sub(dates[i-1]) == 24*time.Hour {
			current++
		} else if dates[i].Equal(dates[i-1]) {
			continue
		} else {
			current = 1
		}
		if current > best {
			best = current
		}
	}
	return best
}
