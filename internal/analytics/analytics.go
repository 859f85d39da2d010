// Package analytics aggregates the run history: outcomes, attempts needed,
// verification durations and where escalated runs failed.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

func query(database DB, q string, args ...interface{}) (*sql.Rows, error) {
	return database.Conn().Query(database.Rebind(q), args...)
}

// sinceClause appends a started/timestamp filter when since is set.
// Timestamps are RFC 3339 strings, so a date prefix compares correctly.
func sinceClause(q, column, since string, args []interface{}) (string, []interface{}) {
	if since == "" {
		return q, args
	}
	return q + fmt.Sprintf(" AND %s >= ?", column), append(args, since)
}

// OutcomeCount is the number of runs that ended with one status.
type OutcomeCount struct {
	Status string  `json:"status"`
	Count  int     `json:"count"`
	Pct    float64 `json:"pct"`
}

// QueryOutcomes counts runs by status.
func QueryOutcomes(database DB, since string) ([]OutcomeCount, error) {
	q, args := sinceClause(`SELECT status, COUNT(*) FROM runs WHERE 1=1`, "started_at", since, nil)
	q += ` GROUP BY status`

	rows, err := query(database, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var results []OutcomeCount
	total := 0
	for rows.Next() {
		var oc OutcomeCount
		if err := rows.Scan(&oc.Status, &oc.Count); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		total += oc.Count
		results = append(results, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Pct = pct(results[i].Count, total)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Status < results[j].Status
	})
	return results, nil
}

// KindSuccess holds completion stats per task kind.
type KindSuccess struct {
	Kind      string  `json:"kind"`
	Total     int     `json:"total"`
	Done      float64 `json:"done_pct"`
	Escalated float64 `json:"escalated_pct"`
	Aborted   float64 `json:"aborted_pct"`
}

// QueryKindSuccess returns outcome rates by task kind for finished runs.
func QueryKindSuccess(database DB, since string) ([]KindSuccess, error) {
	q, args := sinceClause(`
		SELECT COALESCE(task_kind, ''),
			COUNT(*) as total,
			SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END) as done,
			SUM(CASE WHEN status = 'escalated' THEN 1 ELSE 0 END) as escalated,
			SUM(CASE WHEN status = 'aborted' THEN 1 ELSE 0 END) as aborted
		FROM runs
		WHERE status != 'running'`, "started_at", since, nil)
	q += ` GROUP BY COALESCE(task_kind, '')`

	rows, err := query(database, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query kind success: %w", err)
	}
	defer rows.Close()

	var results []KindSuccess
	for rows.Next() {
		var kind string
		var total, done, escalated, aborted int
		if err := rows.Scan(&kind, &total, &done, &escalated, &aborted); err != nil {
			return nil, fmt.Errorf("scan kind success: %w", err)
		}
		if kind == "" {
			kind = "(none)"
		}
		results = append(results, KindSuccess{
			Kind:      kind,
			Total:     total,
			Done:      pct(done, total),
			Escalated: pct(escalated, total),
			Aborted:   pct(aborted, total),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Kind < results[j].Kind
	})
	return results, nil
}

// AttemptDist is how many successful runs needed a given number of attempts.
type AttemptDist struct {
	Attempts int     `json:"attempts"`
	Count    int     `json:"count"`
	Pct      float64 `json:"pct"`
}

// QueryAttempts returns the distribution of attempts (iterations + 1) for
// runs that ended done.
func QueryAttempts(database DB, since string) ([]AttemptDist, error) {
	q, args := sinceClause(`SELECT iterations, COUNT(*) FROM runs WHERE status = 'done'`, "started_at", since, nil)
	q += ` GROUP BY iterations ORDER BY iterations`

	rows, err := query(database, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var results []AttemptDist
	total := 0
	for rows.Next() {
		var iterations, count int
		if err := rows.Scan(&iterations, &count); err != nil {
			return nil, fmt.Errorf("scan attempts: %w", err)
		}
		total += count
		results = append(results, AttemptDist{Attempts: iterations + 1, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Pct = pct(results[i].Count, total)
	}
	return results, nil
}

// VerifyDuration holds duration stats for one test command, in seconds.
type VerifyDuration struct {
	Command string  `json:"command"`
	Count   int     `json:"count"`
	Avg     float64 `json:"avg_seconds"`
	P50     float64 `json:"p50_seconds"`
	P95     float64 `json:"p95_seconds"`
	Passed  float64 `json:"passed_pct"`
}

// QueryVerifyDurations returns average and percentile verification
// durations per command. Runs that could not start are left out.
func QueryVerifyDurations(database DB, since string) ([]VerifyDuration, error) {
	q, args := sinceClause(`
		SELECT command, duration_ms, succeeded
		FROM verify_runs
		WHERE environment = ? AND duration_ms IS NOT NULL`, "timestamp", since, []interface{}{false})

	rows, err := query(database, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query verify durations: %w", err)
	}
	defer rows.Close()

	durations := make(map[string][]float64)
	passed := make(map[string]int)
	for rows.Next() {
		var command string
		var ms int64
		var ok bool
		if err := rows.Scan(&command, &ms, &ok); err != nil {
			return nil, fmt.Errorf("scan verify duration: %w", err)
		}
		durations[command] = append(durations[command], float64(ms)/1000)
		if ok {
			passed[command]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []VerifyDuration
	for command, ds := range durations {
		sort.Float64s(ds)
		results = append(results, VerifyDuration{
			Command: command,
			Count:   len(ds),
			Avg:     avg(ds),
			P50:     percentile(ds, 50),
			P95:     percentile(ds, 95),
			Passed:  pct(passed[command], len(ds)),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Command < results[j].Command
	})
	return results, nil
}

// EscalationCause counts node failures by node and category.
type EscalationCause struct {
	Node     string `json:"node"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// QueryEscalationCauses groups "error" pipeline events. Their detail starts
// with "<category>: ".
func QueryEscalationCauses(database DB, since string) ([]EscalationCause, error) {
	q, args := sinceClause(`SELECT node, detail FROM pipeline_events WHERE event = 'error'`, "timestamp", since, nil)

	rows, err := query(database, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalation causes: %w", err)
	}
	defer rows.Close()

	type key struct{ node, category string }
	counts := make(map[key]int)
	for rows.Next() {
		var node string
		var detail sql.NullString
		if err := rows.Scan(&node, &detail); err != nil {
			return nil, fmt.Errorf("scan escalation cause: %w", err)
		}
		category, _, found := strings.Cut(detail.String, ":")
		if !found || strings.ContainsAny(category, " \n") {
			category = "unknown"
		}
		counts[key{node, category}]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]EscalationCause, 0, len(counts))
	for k, n := range counts {
		results = append(results, EscalationCause{Node: k.node, Category: k.category, Count: n})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		if results[i].Node != results[j].Node {
			return results[i].Node < results[j].Node
		}
		return results[i].Category < results[j].Category
	})
	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
