package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stillpoint/booking-service/internal/db"
)

// Hammers the reserve endpoint with concurrent guests fighting over the same
// slots and checks that no slot ever ends up with more than one winner.

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	Attempts    int
	SlotLimit   int
	PostgresDSN string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:     getEnvInt("SIM_WORKERS", 16),
		Attempts:    getEnvInt("SIM_ATTEMPTS", 500),
		SlotLimit:   getEnvInt("SIM_SLOT_LIMIT", 25),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]
	return avg, min, max, p50, p95
}

type successTracker struct {
	mu     sync.Mutex
	bySlot map[uuid.UUID]int
}

func (st *successTracker) record(slotID uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.bySlot[slotID]++
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulate starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	slotIDs, err := loadAvailableSlotIDs(ctx, pool, cfg.SlotLimit)
	if err != nil {
		log.Fatalf("load slots: %v", err)
	}
	if len(slotIDs) == 0 {
		log.Fatal("no available slots, run cmd/seed first")
	}
	log.Printf("contending over %d slots with %d workers, %d attempts", len(slotIDs), cfg.Workers, cfg.Attempts)

	metrics := &OperationMetrics{}
	tracker := &successTracker{bySlot: make(map[uuid.UUID]int)}
	client := &http.Client{Timeout: 10 * time.Second}

	attempts := make(chan uuid.UUID, cfg.Attempts)
	for i := 0; i < cfg.Attempts; i++ {
		attempts <- slotIDs[rand.Intn(len(slotIDs))]
	}
	close(attempts)

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slotID := range attempts {
				runAttempt(client, cfg.APIBaseURL, slotID, metrics, tracker)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	report(metrics, tracker, elapsed)
}

func loadAvailableSlotIDs(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id
		FROM slots
		WHERE is_booked = FALSE
		ORDER BY date, time_of_day
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func runAttempt(client *http.Client, baseURL string, slotID uuid.UUID, metrics *OperationMetrics, tracker *successTracker) {
	payload := map[string]string{
		"user_id":    uuid.NewString(),
		"first_name": fmt.Sprintf("sim-%d", rand.Intn(10000)),
		"last_name":  "tester",
		"email":      fmt.Sprintf("sim-%s@example.com", uuid.NewString()[:8]),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		metrics.Record(0, false, false)
		return
	}

	url := fmt.Sprintf("%s/slots/%s/reserve", baseURL, slotID)

	start := time.Now()
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		metrics.Record(latency, false, false)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		metrics.Record(latency, true, false)
		tracker.record(slotID)
	case resp.StatusCode == http.StatusConflict:
		metrics.Record(latency, false, true)
	default:
		metrics.Record(latency, false, false)
	}
}

func report(metrics *OperationMetrics, tracker *successTracker, elapsed time.Duration) {
	avg, min, max, p50, p95 := metrics.Stats()

	fmt.Println("=== reserve simulation ===")
	fmt.Printf("elapsed:   %s\n", elapsed)
	fmt.Printf("total:     %d\n", atomic.LoadInt64(&metrics.Total))
	fmt.Printf("success:   %d\n", atomic.LoadInt64(&metrics.Success))
	fmt.Printf("conflict:  %d\n", atomic.LoadInt64(&metrics.Conflict))
	fmt.Printf("error:     %d\n", atomic.LoadInt64(&metrics.Error))
	fmt.Printf("latency:   avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	doubleBooked := 0
	for slotID, wins := range tracker.bySlot {
		if wins > 1 {
			doubleBooked++
			fmt.Printf("DOUBLE BOOKING: slot %s won %d times\n", slotID, wins)
		}
	}
	if doubleBooked == 0 {
		fmt.Println("invariant held: at most one success per slot")
	} else {
		os.Exit(1)
	}
}
