package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// Config holds limiter budgets. A zero budget disables that counter.
// MaxVerifyAttempts bounds wrong codes and token secrets per user.
type Config struct {
	EnableIPThrottle  bool
	MaxLoginAttempts  int
	LoginCooldown     time.Duration
	MaxTokenRequests  int
	TokenCooldown     time.Duration
	MaxVerifyAttempts int
	VerifyCooldown    time.Duration
}

// Limiter enforces login, token-issuance and verification budgets.
type Limiter struct {
	redis  redis.UniversalClient
	config Config

	mu    sync.Mutex
	local map[string]*xrate.Limiter
}

// New creates a Limiter. A nil client selects the in-process fallback.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		local:  make(map[string]*xrate.Limiter),
	}
}

// CheckLogin fails when the identifier or IP has exhausted its failed-login
// budget. It does not count an attempt.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	for _, key := range l.loginKeys(identifier, ip) {
		if err := l.check(ctx, key, l.config.MaxLoginAttempts, l.config.LoginCooldown); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	for _, key := range l.loginKeys(identifier, ip) {
		if err := l.hit(ctx, key, l.config.MaxLoginAttempts, l.config.LoginCooldown); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	return l.reset(ctx, l.loginKeys(identifier, ip)...)
}

// AllowToken counts one issuance request for recipient (an email address or
// phone number) and fails once the budget is spent.
func (l *Limiter) AllowToken(ctx context.Context, recipient string) error {
	if l.config.MaxTokenRequests <= 0 || recipient == "" {
		return nil
	}
	return l.hit(ctx, tokenKey(recipient), l.config.MaxTokenRequests, l.config.TokenCooldown)
}

// CheckVerify fails once userID has spent its budget of wrong codes or
// token secrets. It does not count an attempt.
func (l *Limiter) CheckVerify(ctx context.Context, userID string) error {
	if l.config.MaxVerifyAttempts <= 0 || userID == "" {
		return nil
	}
	return l.check(ctx, verifyKey(userID), l.config.MaxVerifyAttempts, l.config.VerifyCooldown)
}

// IncrementVerify records a wrong code or token secret for userID.
func (l *Limiter) IncrementVerify(ctx context.Context, userID string) error {
	if l.config.MaxVerifyAttempts <= 0 || userID == "" {
		return nil
	}
	return l.hit(ctx, verifyKey(userID), l.config.MaxVerifyAttempts, l.config.VerifyCooldown)
}

// ResetVerify clears the counter after a successful verification.
func (l *Limiter) ResetVerify(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return l.reset(ctx, verifyKey(userID))
}

func (l *Limiter) loginKeys(identifier, ip string) []string {
	keys := []string{loginUserKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	return keys
}

func (l *Limiter) reset(ctx context.Context, keys ...string) error {
	if l.redis == nil {
		l.mu.Lock()
		for _, k := range keys {
			delete(l.local, k)
		}
		l.mu.Unlock()
		return nil
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string, max int, window time.Duration) error {
	if l.redis == nil {
		if l.bucket(key, max, window).Tokens() < 1 {
			return ErrRateLimited
		}
		return nil
	}
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, max int, window time.Duration) error {
	if l.redis == nil {
		if !l.bucket(key, max, window).Allow() {
			return ErrRateLimited
		}
		return nil
	}
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

// bucket refills max tokens per window.
func (l *Limiter) bucket(key string, max int, window time.Duration) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.local[key]
	if !ok {
		every := xrate.Inf
		if window > 0 {
			every = xrate.Every(window / time.Duration(max))
		}
		b = xrate.NewLimiter(every, max)
		l.local[key] = b
	}
	return b
}

func loginUserKey(identifier string) string {
	return "il:" + strings.ToLower(identifier)
}

func loginIPKey(ip string) string {
	return "ili:" + ip
}

func tokenKey(recipient string) string {
	return "it:" + strings.ToLower(recipient)
}

func verifyKey(userID string) string {
	return "iv:" + userID
}
