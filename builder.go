package goIdentity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/cache"
	"github.com/MrEthical07/goIdentity/store/memory"
	redisstore "github.com/MrEthical07/goIdentity/store/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it during initialization; Build
// may be called once.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	roles map[string][]string

	notifier        Notifier
	devices         DeviceLookup
	log             *zap.Logger
	auditSink       AuditSink
	providers       map[string]OAuth2Provider
	providerFactory OAuth2ProviderFactory
	clock           func() time.Time

	built bool
}

// New returns a Builder over DefaultConfig.
func New() *Builder {
	return &Builder{
		config:    DefaultConfig(),
		providers: map[string]OAuth2Provider{},
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the document store. Without it the engine uses a Redis
// store when WithRedis was given and an in-memory store otherwise.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis enables Redis-backed rate limiting and, absent WithStore, the
// Redis document store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRoles adds or overrides write roles. Permission names are
// "<collection>.write"; "*" grants everything.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithDeviceLookup(d DeviceLookup) *Builder {
	b.devices = d
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.log = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithOAuth2Provider registers p under name. The provider must also be
// enabled in Config.OAuth2.Providers.
func (b *Builder) WithOAuth2Provider(name string, p OAuth2Provider) *Builder {
	b.providers[name] = p
	return b
}

// WithOAuth2ProviderFactory builds every enabled provider that has no
// explicit WithOAuth2Provider registration.
func (b *Builder) WithOAuth2ProviderFactory(f OAuth2ProviderFactory) *Builder {
	b.providerFactory = f
	return b
}

// WithClock replaces time.Now; tests use it to step over expiries.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("identity")

	// -------- ROLES --------
	roles, err := newRoleManager(b.roles)
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}

	// -------- STORE --------
	st := b.store
	if st == nil {
		if b.redis != nil {
			st = redisstore.New(b.redis, "identity:"+cfg.Project, Schema())
		} else {
			st = memory.New(Schema())
		}
	}
	if cfg.Cache.Enabled {
		st = cache.New(st, cfg.Cache.TTL)
	}

	// -------- PASSWORDS --------
	pm, err := password.NewManager(cfg.Password.Algorithm, cfg.Password.Options)
	if err != nil {
		return nil, err
	}
	var dict *password.Dictionary
	if cfg.Auth.PasswordDictionary {
		if cfg.Auth.DictionaryPath != "" {
			if dict, err = password.LoadDictionary(cfg.Auth.DictionaryPath); err != nil {
				return nil, fmt.Errorf("password dictionary: %w", err)
			}
		} else {
			dict = password.DefaultDictionary()
		}
	}

	engine := &Engine{
		config:     cfg,
		store:      st,
		guard:      store.NewGuarded(st, roles),
		roles:      roles,
		passwords:  pm,
		dictionary: dict,
		providers:  map[string]OAuth2Provider{},
		notifier:   b.notifier,
		devices:    b.devices,
		metrics:    NewMetrics(cfg.Metrics),
		totp:       newTOTPManager(cfg.TOTP, cfg.Project),
		log:        log,
		clock:      b.clock,
		cookies: session.CookieConfig{
			Project:  cfg.Project,
			Domain:   cfg.Session.CookieDomain,
			Path:     cfg.Session.CookiePath,
			Secure:   cfg.Session.CookieSecure,
			HTTPOnly: true,
			SameSite: cfg.Session.SameSite(),
		},
	}
	if engine.notifier == nil {
		engine.notifier = nopNotifier{log: log}
	}
	if engine.devices == nil {
		engine.devices = defaultDevices{}
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:  cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:  cfg.RateLimit.MaxLoginAttempts,
			LoginCooldown:     cfg.RateLimit.LoginCooldown,
			MaxTokenRequests:  cfg.RateLimit.MaxTokenRequests,
			TokenCooldown:     cfg.RateLimit.TokenCooldown,
			MaxVerifyAttempts: cfg.RateLimit.MaxVerifyAttempts,
			VerifyCooldown:    cfg.RateLimit.VerifyCooldown,
		})
	}

	// -------- OAUTH2 --------
	if err := b.buildProviders(engine, cfg); err != nil {
		return nil, err
	}
	if len(engine.providers) > 0 {
		sm, err := jwt.NewManager(jwt.Config{
			StateTTL:      cfg.OAuth2.StateTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.OAuth2.StateKey),
			Issuer:        cfg.Project,
		})
		if err != nil {
			return nil, fmt.Errorf("oauth2 state: %w", err)
		}
		engine.state = sm
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = NewZapAuditSink(log.Named("audit"))
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Log:        log.Named("audit"),
	}, sink)

	b.built = true
	log.Info("engine built",
		zap.String("project", cfg.Project),
		zap.Int("oauth2_providers", len(engine.providers)),
		zap.Bool("rate_limit", engine.limiter != nil),
		zap.Bool("cache", cfg.Cache.Enabled),
	)
	return engine, nil
}

func (b *Builder) buildProviders(engine *Engine, cfg Config) error {
	base := strings.TrimRight(cfg.OAuth2.CallbackURL, "/")
	for name, pc := range cfg.OAuth2.Providers {
		if !pc.Enabled {
			continue
		}
		if p, ok := b.providers[name]; ok {
			engine.providers[name] = p
			continue
		}
		if b.providerFactory == nil {
			return fmt.Errorf("oauth2 provider %s is enabled but has no client", name)
		}
		p, err := b.providerFactory(name, pc, base+"/"+name)
		if err != nil {
			return fmt.Errorf("oauth2 provider %s: %w", name, err)
		}
		engine.providers[name] = p
	}
	return nil
}
