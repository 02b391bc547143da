package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
)

type seeded struct {
	userID  string
	cookies []string
}

func newLoadtestCmd(o *globalOptions) *cobra.Command {
	var (
		users       int
		perUser     int
		concurrency int
		ops         int
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure Authenticate and token sign-in throughput",
		Long: `Seeds users and sessions, then runs two phases: authenticating random
session cookies, and exchanging freshly issued tokens for sessions. Without
--redis-addr or --postgres-dsn an embedded miniredis is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if users <= 0 || perUser <= 0 || concurrency <= 0 || ops <= 0 {
				return fmt.Errorf("users, sessions-per-user, concurrency and ops must be > 0")
			}
			out := cmd.OutOrStdout()

			if o.redisAddr == "" && o.postgresDSN == "" {
				mr, err := miniredis.Run()
				if err != nil {
					return fmt.Errorf("start miniredis: %w", err)
				}
				defer mr.Close()
				o.redisAddr = mr.Addr()
				fmt.Fprintf(out, "using miniredis at %s\n", o.redisAddr)
			}

			d, err := o.open(cmd.Context(), func(c *identity.Config) {
				c.Session.MaxSessions = 0
				c.RateLimit.Enabled = false
				c.Audit.Enabled = false
				c.Metrics.Enabled = true
				c.Metrics.EnableLatencyHistograms = true
			})
			if err != nil {
				return err
			}
			defer d.Close()

			fmt.Fprintf(out, "seeding %d users x %d sessions...\n", users, perUser)
			startSeed := time.Now()
			states, err := seed(cmd.Context(), d.engine, users, perUser)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

			authStats := runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
				st := states[r.Intn(len(states))]
				_, _, err := d.engine.Authenticate(cmd.Context(), admin, st.cookies[r.Intn(len(st.cookies))])
				return err
			})
			tokenStats := runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
				st := states[r.Intn(len(states))]
				tok, err := d.engine.IssueToken(cmd.Context(), admin, st.userID, time.Minute)
				if err != nil {
					return err
				}
				res, err := d.engine.CreateSessionFromToken(cmd.Context(), admin, st.userID, tok.Secret)
				if err != nil {
					return err
				}
				_, err = d.engine.DeleteSession(cmd.Context(), admin, st.userID, res.Session.ID)
				return err
			})

			fmt.Fprintln(out, "---- results ----")
			printStats(out, "authenticate", authStats)
			printStats(out, "token-session", tokenStats)
			return nil
		},
	}
	cmd.Flags().IntVar(&users, "users", 50, "number of users to seed")
	cmd.Flags().IntVar(&perUser, "sessions-per-user", 20, "sessions seeded per user")
	cmd.Flags().IntVar(&concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&ops, "ops", 20000, "operations per phase")
	return cmd
}

// seed creates users with one password hash each and mints their sessions
// from generic tokens, which skips the password hash on every session.
func seed(ctx context.Context, e *identity.Engine, users, perUser int) ([]seeded, error) {
	states := make([]seeded, 0, users)
	for i := 0; i < users; i++ {
		email := fmt.Sprintf("load-%d@loadtest.invalid", i)
		u, err := e.CreateAccount(ctx, admin, "", email, fmt.Sprintf("Load-test-%d-pass", i), "")
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", email, err)
		}
		st := seeded{userID: u.ID, cookies: make([]string, 0, perUser)}
		for j := 0; j < perUser; j++ {
			tok, err := e.IssueToken(ctx, admin, u.ID, time.Hour)
			if err != nil {
				return nil, err
			}
			res, err := e.CreateSessionFromToken(ctx, admin, u.ID, tok.Secret)
			if err != nil {
				return nil, err
			}
			st.cookies = append(st.cookies, res.Cookie.Value)
		}
		states = append(states, st)
	}
	return states, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

// percentile picks the nearest-rank sample from sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	n := len(samples)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[n-1]
	}
	return samples[(p*n+99)/100-1]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
