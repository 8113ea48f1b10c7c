package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/credstore"
	"github.com/MrEthical07/tokenauth/credstore/memory"
	"github.com/MrEthical07/tokenauth/credstore/sqlite"
	promexport "github.com/MrEthical07/tokenauth/metrics/export/prometheus"
	"github.com/MrEthical07/tokenauth/password"
)

const seedPassword = "load-test-password"

type userState struct {
	user  tokenauth.User
	mu    sync.Mutex
	token string
}

// seeder is implemented by every reference store.
type seeder interface {
	tokenauth.CredentialStore
	seed(ctx context.Context, s credstore.Seed) (tokenauth.User, error)
}

type memorySeeder struct{ *memory.Store }

func (m memorySeeder) seed(_ context.Context, s credstore.Seed) (tokenauth.User, error) {
	return m.AddUser(s)
}

type sqliteSeeder struct{ *sqlite.Store }

func (m sqliteSeeder) seed(ctx context.Context, s credstore.Seed) (tokenauth.User, error) {
	return m.AddUser(ctx, s)
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent login workers")
		rounds      = flag.Int("rounds", 500, "refresh race rounds")
		racers      = flag.Int("racers", 8, "concurrent refreshes per round")
		storeKind   = flag.String("store", "memory", "credential store: memory or sqlite")
		sqlitePath  = flag.String("sqlite-path", "tokenauth-loadtest.db", "sqlite database file")
		tokensIn    = flag.String("tokens", "redis", "refresh token storage: redis or store")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		envFile     = flag.String("env-file", ".env", "optional dotenv file with TOKENAUTH_* settings")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
		audit       = flag.Bool("audit", false, "log audit events to stderr")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *rounds <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and rounds must be > 0; racers must be > 1")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	cfg := loadConfig(logger, *envFile)
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	hasher, err := password.NewArgon2(password.Config{Memory: 16 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		fatal("hasher: %v", err)
	}

	var store seeder
	switch *storeKind {
	case "memory":
		store = memorySeeder{memory.New(hasher)}
	case "sqlite":
		_ = os.Remove(*sqlitePath)
		s, err := sqlite.Open(ctx, *sqlitePath, hasher)
		if err != nil {
			fatal("open sqlite: %v", err)
		}
		defer s.Close()
		store = sqliteSeeder{s}
	default:
		fatal("unknown store %q", *storeKind)
	}

	builder := tokenauth.New().WithConfig(cfg).WithCredentialStore(store)
	switch *tokensIn {
	case "redis":
		client, cleanup := openRedis(*redisAddr)
		defer cleanup()
		builder.WithRedis(client)
	case "store":
	default:
		fatal("unknown token storage %q", *tokensIn)
	}
	if *audit {
		cfg.Audit.Enabled = true
		builder.WithConfig(cfg).WithAuditSink(tokenauth.NewSlogSink(logger))
	}

	engine, err := builder.Build()
	if err != nil {
		fatal("build engine: %v", err)
	}
	defer engine.Close()

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promexport.NewCollector(engine).Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "err", err)
			}
		}()
		defer srv.Close()
		fmt.Printf("serving metrics on %s\n", *metricsAddr)
	}

	states := make([]*userState, *users)
	fmt.Printf("seeding %d users into %s store...\n", *users, *storeKind)
	startSeed := time.Now()
	for i := range states {
		u, err := store.seed(ctx, credstore.Seed{
			Email:       fmt.Sprintf("user-%d@loadtest.local", i),
			DisplayName: fmt.Sprintf("User %d", i),
			Password:    seedPassword,
		})
		if err != nil {
			fatal("seed user %d: %v", i, err)
		}
		states[i] = &userState{user: u}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runLoginPhase(ctx, engine, states, *concurrency)
	race := runRacePhase(ctx, engine, states, *rounds, *racers)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("refresh", race.stats)
	fmt.Printf("races: rounds=%d single_winner=%d violations=%d\n", race.rounds, race.singleWinner, race.violations)
	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: tokens_issued=%d refresh_race_lost=%d dependency_failures=%d audit_dropped=%d\n",
		snap.Counters[tokenauth.MetricTokensIssued],
		snap.Counters[tokenauth.MetricRefreshRaceLost],
		snap.Counters[tokenauth.MetricDependencyFailure],
		engine.AuditDropped(),
	)

	if race.violations > 0 {
		os.Exit(1)
	}
}

// loadConfig reads TOKENAUTH_* settings. Without a configured secret the run
// uses an ephemeral one.
func loadConfig(logger *slog.Logger, envFile string) tokenauth.Config {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fatal("load %s: %v", envFile, err)
	}

	cfg, err := tokenauth.ConfigFromEnv()
	if err == nil {
		return cfg
	}
	logger.Warn("environment config unusable, using ephemeral secret", "err", err)

	secret := make([]byte, 48)
	if _, err := rand.Read(secret); err != nil {
		fatal("generate secret: %v", err)
	}
	cfg = tokenauth.DefaultConfig()
	cfg.JWT.SigningSecret = secret
	cfg.JWT.Issuer = "tokenauth-loadtest"
	cfg.JWT.Audience = "tokenauth-loadtest"
	return cfg
}

func openRedis(addr string) (redis.UniversalClient, func()) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }
	}

	mr, err := miniredis.Run()
	if err != nil {
		fatal("failed to start miniredis: %v", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

func runLoginPhase(ctx context.Context, engine *tokenauth.Engine, states []*userState, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(states))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) {
					return
				}
				state := states[i]
				t0 := time.Now()
				res, err := engine.Login(ctx, state.user.Email, seedPassword)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					state.mu.Lock()
					state.token = res.RefreshToken
					state.mu.Unlock()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type raceResult struct {
	stats        phaseStats
	rounds       int
	singleWinner int
	violations   int
}

// runRacePhase presents the same refresh token from several goroutines at
// once. Every round must have exactly one winner.
func runRacePhase(ctx context.Context, engine *tokenauth.Engine, states []*userState, rounds, racers int) raceResult {
	var (
		out       raceResult
		latencies = make([]time.Duration, 0, rounds*racers)
		failures  int64
		mu        sync.Mutex
	)

	start := time.Now()
	for r := 0; r < rounds; r++ {
		state := states[r%len(states)]
		if state.token == "" {
			continue
		}

		var (
			wg      sync.WaitGroup
			winners []string
			gate    = make(chan struct{})
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.user, state.token)
				d := time.Since(t0)
				mu.Lock()
				defer mu.Unlock()
				latencies = append(latencies, d)
				switch {
				case err == nil:
					winners = append(winners, pair.RefreshToken)
				case errors.Is(err, tokenauth.ErrInvalidRefreshToken):
				default:
					failures++
				}
			}()
		}
		close(gate)
		wg.Wait()

		out.rounds++
		if len(winners) == 1 {
			out.singleWinner++
			state.token = winners[0]
		} else {
			out.violations++
			state.token = ""
		}
	}

	out.stats = computeStats(time.Since(start), latencies, failures)
	return out
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
