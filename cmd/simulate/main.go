package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/logger"
)

// SimConfig drives a load run against the three HTTP services.
type SimConfig struct {
	SchedulingURL   string
	StaffingURL     string
	ConsultationURL string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	StatusRatio     float64
	ReadRatio       float64
	Patients        int
	ConvergeTimeout time.Duration
}

type booked struct {
	id       int64
	bookedAt time.Time
}

// bookingLog is shared by all workers.
type bookingLog struct {
	mu      sync.RWMutex
	entries []booked
}

func (b *bookingLog) add(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, booked{id: id, bookedAt: time.Now()})
}

func (b *bookingLog) random(rng *rand.Rand) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return 0, false
	}
	return b.entries[rng.Intn(len(b.entries))].id, true
}

func (b *bookingLog) snapshot() []booked {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]booked(nil), b.entries...)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record classifies a response: 2xx success, 4xx rejected, anything else error.
func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	return percentiles(latencies)
}

func percentiles(latencies []time.Duration) (avg, p50, p95, max time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Status  OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config      SimConfig
	specialties []string
	bookings    bookingLog
	client      *http.Client
	metrics     Metrics
	log         *zap.Logger
}

func main() {
	log, err := logger.New(getEnv("APP_ENV", "dev"), "simulate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		log.Fatal("SIM_WORKERS and SIM_DURATION must be positive")
	}

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sim.specialties, err = sim.loadSpecialties(ctx)
	cancel()
	if err != nil {
		log.Fatal("load specialties from staffing service", zap.Error(err))
	}

	log.Info("simulation starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Strings("specialties", sim.specialties),
	)

	sim.Run()
	lags, missing := sim.Converge()
	sim.PrintReport(lags, missing)
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		SchedulingURL:   getEnv("SIM_SCHEDULING_URL", "http://localhost:8080"),
		StaffingURL:     getEnv("SIM_STAFFING_URL", "http://localhost:8082"),
		ConsultationURL: getEnv("SIM_CONSULTATION_URL", "http://localhost:8081"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.6),
		StatusRatio:     getFloat("SIM_STATUS_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		Patients:        getInt("SIM_PATIENTS", 5000),
		ConvergeTimeout: getDuration("SIM_CONVERGE_TIMEOUT", 30*time.Second),
	}

	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func (s *Simulator) loadSpecialties(ctx context.Context) ([]string, error) {
	var body struct {
		Providers []struct {
			Specialty string `json:"specialty"`
			Available bool   `json:"available"`
		} `json:"providers"`
	}
	status, err := s.call(ctx, http.MethodGet, s.config.StaffingURL+"/providers", nil, &body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range body.Providers {
		if p.Available && !seen[p.Specialty] {
			seen[p.Specialty] = true
			out = append(out, p.Specialty)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no available providers, run cmd/seed first")
	}
	sort.Strings(out)
	return out, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("load phase complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, faker)
		case r < s.config.BookingRatio+s.config.StatusRatio:
			s.doStatusUpdate(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	date := faker.DateRange(time.Now().Add(24*time.Hour), time.Now().Add(90*24*time.Hour)).UTC().Truncate(time.Minute)
	req := map[string]any{
		"date":      date,
		"specialty": s.specialties[rng.Intn(len(s.specialties))],
		"patientId": rng.Intn(s.config.Patients) + 1,
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, s.config.SchedulingURL+"/appointments", req, &resp)
	if err != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), status)

	if status == http.StatusCreated && resp.ID != 0 {
		s.bookings.add(resp.ID)
	}
}

func (s *Simulator) doStatusUpdate(ctx context.Context, rng *rand.Rand) {
	id, ok := s.bookings.random(rng)
	if !ok {
		return
	}
	statuses := []string{"UPCOMING", "DONE", "CANCELLED"}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPatch,
		fmt.Sprintf("%s/appointments/%d/status", s.config.SchedulingURL, id),
		map[string]string{"status": statuses[rng.Intn(len(statuses))]}, nil)
	if err != nil {
		return
	}
	s.metrics.Status.Record(time.Since(start), status)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	url := fmt.Sprintf("%s/appointments?patientId=%d", s.config.SchedulingURL, rng.Intn(s.config.Patients)+1)
	if id, ok := s.bookings.random(rng); ok && rng.Intn(2) == 0 {
		url = fmt.Sprintf("%s/appointments/%d", s.config.SchedulingURL, id)
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return
	}
	s.metrics.Read.Record(time.Since(start), status)
}

// Converge polls the consultation service until every booked appointment has
// been projected or the timeout passes. It returns per-appointment projection
// lag and the number never seen.
func (s *Simulator) Converge() ([]time.Duration, int) {
	pending := make(map[int64]time.Time)
	for _, b := range s.bookings.snapshot() {
		pending[b.id] = b.bookedAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ConvergeTimeout)
	defer cancel()

	var lags []time.Duration
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for len(pending) > 0 {
		for id, bookedAt := range pending {
			var body struct {
				Count int `json:"count"`
			}
			status, err := s.call(ctx, http.MethodGet,
				fmt.Sprintf("%s/consultations?appointmentId=%d", s.config.ConsultationURL, id), nil, &body)
			if err == nil && status == http.StatusOK && body.Count > 0 {
				lags = append(lags, time.Since(bookedAt))
				delete(pending, id)
			}
		}

		select {
		case <-ctx.Done():
			return lags, len(pending)
		case <-ticker.C:
		}
	}
	return lags, 0
}

func (s *Simulator) call(ctx context.Context, method, url string, in, out any) (int, error) {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport(lags []time.Duration, missing int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Status update", &s.metrics.Status)
	printOperationReport("Read", &s.metrics.Read)

	avg, p50, p95, max := percentiles(lags)
	fmt.Println("Projection:")
	fmt.Printf("  Projected: %d\n", len(lags))
	fmt.Printf("  Not projected within %s: %d\n", s.config.ConvergeTimeout, missing)
	fmt.Printf("  Lag: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
