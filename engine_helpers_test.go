package goIdentity

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	emails []EmailMessage
	sms    []SMSMessage
	err    error
}

func (n *recordingNotifier) EnqueueEmail(_ context.Context, msg EmailMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.emails = append(n.emails, msg)
	return nil
}

func (n *recordingNotifier) EnqueueSMS(_ context.Context, msg SMSMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sms = append(n.sms, msg)
	return nil
}

func (n *recordingNotifier) lastEmail(t *testing.T) EmailMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.emails) == 0 {
		t.Fatalf("expected an email to be enqueued")
	}
	return n.emails[len(n.emails)-1]
}

func (n *recordingNotifier) lastSMS(t *testing.T) SMSMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sms) == 0 {
		t.Fatalf("expected an sms to be enqueued")
	}
	return n.sms[len(n.sms)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testConfig keeps argon2 at its floor so tests hash quickly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Project = "test"
	cfg.Password.Options = password.Options{
		Memory:     8 * 1024,
		Time:       1,
		Threads:    1,
		SaltLength: 16,
		KeyLength:  32,
	}
	cfg.Metrics.Enabled = true
	return cfg
}

type testEngine struct {
	*Engine
	notifier *recordingNotifier
	clock    *testClock
}

func newTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) *testEngine {
	t.Helper()
	n := &recordingNotifier{}
	clk := newTestClock()
	b := New().WithConfig(cfg).WithNotifier(n).WithClock(clk.Now)
	for _, opt := range opts {
		opt(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	return &testEngine{Engine: e, notifier: n, clock: clk}
}

var guest = &Request{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0"}

var trustedApp = &Request{App: true}

func (te *testEngine) signUp(t *testing.T, email, plain string) *User {
	t.Helper()
	u, err := te.CreateAccount(context.Background(), guest, "", email, plain, "Test User")
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", email, err)
	}
	return u
}

func (te *testEngine) login(t *testing.T, email, plain string) *SessionResult {
	t.Helper()
	res, err := te.CreateEmailPasswordSession(context.Background(), guest, email, plain)
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession(%s): %v", email, err)
	}
	return res
}

// as returns the Request of a signed-in user using res as the current
// session.
func as(user *User, res *SessionResult) *Request {
	req := &Request{IP: guest.IP, UserAgent: guest.UserAgent, User: user}
	if res != nil {
		req.Secret = res.Secret
	}
	return req
}

func (te *testEngine) storedUser(t *testing.T, id string) User {
	t.Helper()
	u, err := te.getUser(context.Background(), id)
	if err != nil {
		t.Fatalf("getUser: %v", err)
	}
	if u.IsEmpty() {
		t.Fatalf("user %s not found", id)
	}
	return u
}

func (te *testEngine) storedSession(t *testing.T, id string) Session {
	t.Helper()
	s, err := getEntity[Session](context.Background(), te.store, CollectionSessions, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return s
}

func queryParam(t *testing.T, raw, key string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Query().Get(key)
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func requireErr(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Type, err)
	}
}

// barrierStore holds reads of one collection until parties readers have
// arrived, so concurrent requests all observe the same document before any
// of them writes. It is inert until armed.
type barrierStore struct {
	store.Store
	coll    string
	parties int
	armed   atomic.Bool

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrierStore(coll string, parties int) *barrierStore {
	return &barrierStore{
		Store:   memory.New(Schema()),
		coll:    coll,
		parties: parties,
		release: make(chan struct{}),
	}
}

func (s *barrierStore) hold(coll string) {
	if coll != s.coll || !s.armed.Load() {
		return
	}
	s.mu.Lock()
	s.arrived++
	if s.arrived == s.parties {
		close(s.release)
	}
	s.mu.Unlock()
	select {
	case <-s.release:
	case <-time.After(2 * time.Second):
	}
}

func (s *barrierStore) GetByID(ctx context.Context, coll, id string) (store.Document, error) {
	d, err := s.Store.GetByID(ctx, coll, id)
	s.hold(coll)
	return d, err
}

func (s *barrierStore) Find(ctx context.Context, coll string, f store.Filter) ([]store.Document, error) {
	docs, err := s.Store.Find(ctx, coll, f)
	s.hold(coll)
	return docs, err
}

// race runs fn from n goroutines at once and returns their errors.
func race(n int, fn func() error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fn()
		}(i)
	}
	wg.Wait()
	return errs
}

// oneWinner fails unless exactly one error is nil and the rest are want.
func oneWinner(t *testing.T, errs []error, want *Error) {
	t.Helper()
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireErr(t, err, want)
	}
	if wins != 1 {
		t.Fatalf("%d of %d concurrent requests succeeded, want 1", wins, len(errs))
	}
}
