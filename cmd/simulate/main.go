package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/app"
	"github.com/hackgods/therapy-scheduling/internal/auth"
	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/config"
	"github.com/hackgods/therapy-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	BurstSize    int
	Targets      int
	PairLimit    int
	PostgresDSN  string
	JWTSecret    string
	Location     *time.Location
}

// Target is one (therapist, instant) that many clients race for.
type Target struct {
	TherapistID uuid.UUID
	Time        time.Time
	Clients     []uuid.UUID
}

type DataPool struct {
	Targets      []Target
	tokens       map[uuid.UUID]string
	mu           sync.RWMutex
	appointments []bookedAppointment // Thread-safe list of created appointments
}

type bookedAppointment struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
	ClientID    uuid.UUID
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) Token(id uuid.UUID) string {
	return dp.tokens[id]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking  OperationMetrics
	Burst    OperationMetrics
	Confirm  OperationMetrics
	ReadByID OperationMetrics
	List     OperationMetrics

	// burst rounds with more than one winner; must stay zero
	DoubleBookings int64
	BurstRounds    int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	cfg, logger := loadConfig()
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Int("burst_size", cfg.BurstSize),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.DefaultPoolOptions)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data loaded", zap.Int("targets", len(dataPool.Targets)), zap.Int("tokens", len(dataPool.tokens)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}

	sim.RunBursts(context.Background())
	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, *zap.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(baseCfg.Env)

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		BurstSize:    getInt("SIM_BURST_SIZE", 20),
		Targets:      getInt("SIM_TARGETS", 50),
		PairLimit:    getInt("SIM_PAIR_LIMIT", 4000),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
		Location:     baseCfg.PracticeLocation,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, logger
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Targets <= 0 {
		return fmt.Errorf("SIM_TARGETS must be > 0")
	}
	return nil
}

// loadDataPool builds booking targets from seeded links and schedules: the
// start of some future occurrence of a slot, shared by all of the therapist's
// clients. Tokens are minted locally with the shared secret.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{tokens: make(map[uuid.UUID]string)}

	rows, err := pool.Query(ctx, `
		SELECT l.therapist_id, t.role, l.client_id
		FROM therapist_links l
		JOIN users t ON t.id = l.therapist_id
		LIMIT $1
	`, cfg.PairLimit)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}

	clients := make(map[uuid.UUID][]uuid.UUID)
	roles := make(map[uuid.UUID]access.Role)
	for rows.Next() {
		var therapistID, clientID uuid.UUID
		var role string
		if err := rows.Scan(&therapistID, &role, &clientID); err != nil {
			rows.Close()
			return nil, err
		}
		clients[therapistID] = append(clients[therapistID], clientID)
		roles[therapistID] = access.Role(role)
		roles[clientID] = access.RoleClient
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id, role := range roles {
		tok, err := auth.Sign(cfg.JWTSecret, id, "", role, cfg.Duration+time.Hour)
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		dataPool.tokens[id] = tok
	}

	rows, err = pool.Query(ctx, `SELECT `+availability.SlotColumns+` FROM availability_slots`)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	slots, err := availability.CollectSlots(rows)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	now := time.Now().In(cfg.Location)
	for _, s := range slots {
		if len(dataPool.Targets) >= cfg.Targets {
			break
		}
		cs := clients[s.TherapistID]
		if len(cs) == 0 {
			continue
		}
		weeksAhead := 1 + rng.Intn(8)
		dataPool.Targets = append(dataPool.Targets, Target{
			TherapistID: s.TherapistID,
			Time:        nextOccurrence(now, s, weeksAhead),
			Clients:     cs,
		})
	}

	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no booking targets; run cmd/seed first")
	}

	return dataPool, nil
}

// nextOccurrence returns the start of slot on its weekday, weeksAhead weeks out.
func nextOccurrence(now time.Time, s availability.Slot, weeksAhead int) time.Time {
	days := (int(s.Weekday) - int(now.Weekday()) + 7) % 7
	d := now.AddDate(0, 0, days+7*weeksAhead)
	return time.Date(d.Year(), d.Month(), d.Day(), int(s.StartTime)/60, int(s.StartTime)%60, 0, 0, now.Location())
}

// RunBursts fires BurstSize identical bookings at each target at once and
// counts rounds with more than one success.
func (s *Simulator) RunBursts(ctx context.Context) {
	if s.config.BurstSize <= 1 {
		return
	}
	s.logger.Info("running identical-booking bursts", zap.Int("targets", len(s.pool.Targets)))

	for _, target := range s.pool.Targets {
		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			winners int64
		)
		for i := 0; i < s.config.BurstSize; i++ {
			clientID := target.Clients[i%len(target.Clients)]
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if s.book(ctx, target, clientID, &s.metrics.Burst) {
					atomic.AddInt64(&winners, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		atomic.AddInt64(&s.metrics.BurstRounds, 1)
		if winners > 1 {
			atomic.AddInt64(&s.metrics.DoubleBookings, 1)
			s.logger.Error("double booking detected",
				zap.Stringer("therapist_id", target.TherapistID),
				zap.Time("time", target.Time),
				zap.Int64("winners", winners),
			)
		}
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting mixed workload", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Select operation based on ratios
			r := rng.Float64()
			if r < s.config.BookingRatio {
				target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
				clientID := target.Clients[rng.Intn(len(target.Clients))]
				s.book(ctx, target, clientID, &s.metrics.Booking)
			} else if r < s.config.BookingRatio+s.config.ConfirmRatio {
				s.doConfirm(ctx, rng)
			} else if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doList(ctx, rng)
			}
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) book(ctx context.Context, target Target, clientID uuid.UUID, om *OperationMetrics) bool {
	start := time.Now()

	resp, err := s.send(ctx, http.MethodPost, "/appointments", s.pool.Token(clientID), map[string]string{
		"therapist_id": target.TherapistID.String(),
		"time":         target.Time.Format(time.RFC3339),
	})
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			// Parse response to get appointment ID
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&apptResp) == nil && apptResp.ID != uuid.Nil {
				s.pool.AddAppointment(bookedAppointment{ID: apptResp.ID, TherapistID: target.TherapistID, ClientID: clientID})
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
	return success
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/approve", appt.ID), s.pool.Token(appt.TherapistID), nil)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Confirm.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/appointments/%s", appt.ID), s.pool.Token(appt.ClientID), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, "/appointments?limit=20&offset=0", s.pool.Token(target.TherapistID), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Burst rounds: %d (size %d), double bookings: %d\n",
		atomic.LoadInt64(&s.metrics.BurstRounds), s.config.BurstSize, atomic.LoadInt64(&s.metrics.DoubleBookings))
	fmt.Println()

	printOperationReport("Burst booking", &s.metrics.Burst)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Approve", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
