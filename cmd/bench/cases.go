// README: Benchmark cases for the tour/booking API; includes HTTP flow, DB consistency, Redis events and contention checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"convoy/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// filled in as the flow cases run
	tourID    int64
	bookingID int64

	mu     sync.Mutex
	events map[int64]int
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		events: map[int64]int{},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		r.watchEvents(ctx)
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

// watchEvents counts per-tour events published by the API.
func (r *Runner) watchEvents(ctx context.Context) {
	sub := r.redis.PSubscribe(ctx, r.cfg.RedisChannel+":tour:*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return
	}
	go func() {
		defer sub.Close()
		for msg := range sub.Channel() {
			var e struct {
				TourID int64 `json:"tour_id"`
			}
			if json.Unmarshal([]byte(msg.Payload), &e) != nil {
				continue
			}
			r.mu.Lock()
			r.events[e.TourID]++
			r.mu.Unlock()
		}
	}()
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "Redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "Apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "Tables from migrations/0001_init.sql exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "API: health",
			Focus: "API answers",
			Run: func(ctx context.Context, r *Runner) Result {
				code, _, latency, err := r.call(ctx, http.MethodGet, "/health", "", nil)
				return expect(code, latency, err, http.StatusOK)
			},
		},
		{
			Name:  "API: missing token -> 401",
			Focus: "Auth enforced",
			Run: func(ctx context.Context, r *Runner) Result {
				code, _, latency, err := r.call(ctx, http.MethodGet, "/api/carriers/me/tours", "", nil)
				return expect(code, latency, err, http.StatusUnauthorized)
			},
		},

		// Tour and booking flow
		{
			Name:  "Tour: carrier creates tour",
			Focus: "POST /api/tours",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CarrierToken == "" {
					return Result{Status: statusSkip, Note: "no carrier token"}
				}
				id, latency, err := r.createTour(ctx, 10)
				if err != nil {
					return Result{Status: statusFail, Latency: latency, Note: err.Error()}
				}
				r.tourID = id
				return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("tour=%d", id)}
			},
		},
		{
			Name:  "Booking: client books 2 kg",
			Focus: "POST /api/tours/:id/bookings",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.tourID == 0 || len(r.cfg.ClientTokens) == 0 {
					return Result{Status: statusSkip, Note: "needs a tour and a client token"}
				}
				code, body, latency, err := r.call(ctx, http.MethodPost, r.tourPath("/bookings"), r.cfg.ClientTokens[0], map[string]any{"weight_kg": 2})
				res := expect(code, latency, err, http.StatusCreated)
				if res.Status == statusPass {
					r.bookingID = int64(number(body["id"]))
				}
				return res
			},
		},
		{
			Name:  "Booking: duplicate active booking -> 409",
			Focus: "One active booking per client and tour",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bookingID == 0 {
					return Result{Status: statusSkip, Note: "no booking"}
				}
				code, _, latency, err := r.call(ctx, http.MethodPost, r.tourPath("/bookings"), r.cfg.ClientTokens[0], map[string]any{"weight_kg": 1})
				return expect(code, latency, err, http.StatusConflict)
			},
		},
		{
			Name:  "Booking: over capacity -> 422",
			Focus: "Capacity ledger rejects overbooking",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.tourID == 0 || len(r.cfg.ClientTokens) < 2 {
					return Result{Status: statusSkip, Note: "needs a second client token"}
				}
				code, _, latency, err := r.call(ctx, http.MethodPost, r.tourPath("/bookings"), r.cfg.ClientTokens[1], map[string]any{"weight_kg": 9})
				return expect(code, latency, err, http.StatusUnprocessableEntity)
			},
		},
		{
			Name:  "Tour: start collecting",
			Focus: "Planned -> collecting",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.tourID == 0 {
					return Result{Status: statusSkip, Note: "no tour"}
				}
				code, _, latency, err := r.call(ctx, http.MethodPost, r.tourPath("/transition"), r.cfg.CarrierToken, map[string]any{"target": types.TourCollecting})
				return expect(code, latency, err, http.StatusOK)
			},
		},
		{
			Name:  "Tour: transit with uncollected bookings -> 412",
			Focus: "Guard lists the blocking bookings",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bookingID == 0 {
					return Result{Status: statusSkip, Note: "no booking"}
				}
				code, body, latency, err := r.call(ctx, http.MethodPost, r.tourPath("/transition"), r.cfg.CarrierToken, map[string]any{"target": types.TourInTransit})
				res := expect(code, latency, err, http.StatusPreconditionFailed)
				if res.Status != statusPass {
					return res
				}
				ids, _ := body["booking_ids"].([]any)
				if !slices.ContainsFunc(ids, func(v any) bool { return int64(number(v)) == r.bookingID }) {
					return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("booking_ids=%v", ids)}
				}
				return res
			},
		},
		{
			Name:  "Redis: tour events published",
			Focus: "Post-commit notifications reach subscribers",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil || r.tourID == 0 {
					return Result{Status: statusSkip, Note: "needs redis and a tour"}
				}
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					r.mu.Lock()
					n := r.events[r.tourID]
					r.mu.Unlock()
					if n > 0 {
						return Result{Status: statusPass, Note: fmt.Sprintf("events=%d", n)}
					}
					time.Sleep(100 * time.Millisecond)
				}
				return Result{Status: statusFail, Note: "no events on tour channel"}
			},
		},

		// Data consistency
		{
			Name:  "Consistency: remaining capacity matches bookings",
			Focus: "remaining = total - non-cancelled booking weight",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				var bad int
				err := r.db.QueryRow(ctx, `
SELECT COUNT(*) FROM tours t
WHERE t.remaining_capacity <> t.total_capacity - COALESCE(
    (SELECT SUM(b.weight) FROM bookings b WHERE b.tour_id = t.id AND b.status <> $1), 0)`,
					types.BookingCancelled,
				).Scan(&bad)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if bad > 0 {
					return Result{Status: statusFail, Note: fmt.Sprintf("tours out of balance=%d", bad)}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Consistency: every tour has an audit trail",
			Focus: "state_events rows for each tour",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				var missing int
				err := r.db.QueryRow(ctx, `
SELECT COUNT(*) FROM tours t
WHERE NOT EXISTS (SELECT 1 FROM state_events e WHERE e.entity = $1 AND e.entity_id = t.id)`,
					types.EntityTour,
				).Scan(&missing)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if missing > 0 {
					return Result{Status: statusFail, Note: fmt.Sprintf("tours without events=%d", missing)}
				}
				return Result{Status: statusPass}
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: clients race for the last kilograms",
			Focus: "Capacity never goes negative",
			Run: func(ctx context.Context, r *Runner) Result {
				return contention(ctx, r)
			},
		},

		// Performance
		{
			Name:  "Perf: tour read throughput",
			Focus: "GET /api/tours/:id",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.tourID == 0 {
					return Result{Status: statusSkip, Note: "no tour"}
				}
				return perfLoad(ctx, r, r.tourPath(""), r.cfg.CarrierToken)
			},
		},
	}
}

func (r *Runner) tourPath(suffix string) string {
	return fmt.Sprintf("/api/tours/%d%s", r.tourID, suffix)
}

func (r *Runner) createTour(ctx context.Context, capacityKg float64) (int64, time.Duration, error) {
	departure := time.Now().AddDate(0, 0, 14)
	code, body, latency, err := r.call(ctx, http.MethodPost, "/api/tours", r.cfg.CarrierToken, map[string]any{
		"departure_country":   "France",
		"destination_country": "Sénégal",
		"departure_date":      departure.Format("2006-01-02"),
		"total_capacity_kg":   capacityKg,
		"route": []map[string]any{
			{"name": "Paris Nord", "scheduled_date": departure.AddDate(0, 0, -1).Format("2006-01-02"), "scheduled_time": "09:00", "type": "pickup"},
			{"name": "Dakar", "scheduled_date": departure.AddDate(0, 0, 6).Format("2006-01-02"), "type": "dropoff"},
		},
	})
	if err != nil {
		return 0, latency, err
	}
	if code != http.StatusCreated {
		return 0, latency, fmt.Errorf("status=%d body=%v", code, body)
	}
	return int64(number(body["id"])), latency, nil
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, map[string]any, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	latency := time.Since(start)

	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, latency, nil
}

func expect(code int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", code)
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: note + fmt.Sprintf(" want=%d", want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: note}
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}

// contention books 3 kg per client on a tour sized for all but one of them.
func contention(ctx context.Context, r *Runner) Result {
	clients := r.cfg.ClientTokens
	if r.cfg.CarrierToken == "" || len(clients) < 2 {
		return Result{Status: statusSkip, Note: "needs a carrier and at least two client tokens"}
	}
	const perClient = 3
	capacityKg := float64(perClient * (len(clients) - 1))
	tourID, _, err := r.createTour(ctx, capacityKg)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	path := fmt.Sprintf("/api/tours/%d/bookings", tourID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	start := make(chan struct{})
	for _, tok := range clients {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			<-start
			code, _, _, err := r.call(ctx, http.MethodPost, path, tok, map[string]any{"weight_kg": perClient})
			if err != nil {
				return
			}
			mu.Lock()
			switch code {
			case http.StatusCreated:
				ok++
			case http.StatusUnprocessableEntity:
				full++
			}
			mu.Unlock()
		}(tok)
	}
	close(start)
	wg.Wait()

	note := fmt.Sprintf("success=%d rejected=%d", ok, full)
	if ok != len(clients)-1 || full != 1 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path, token string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count, errCount int64
		mu              sync.Mutex
		wg              sync.WaitGroup
	)

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, _, err := r.call(ctx, http.MethodGet, path, token, nil)
				mu.Lock()
				if err != nil || code != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
