package application

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

var tracer = otel.Tracer("github.com/viralforge/porter-dispatch/internal/application")

type Service struct {
	cfg         Config
	principals  ports.PrincipalRepository
	deliveries  ports.DeliveryRepository
	payments    ports.PaymentRepository
	outbox      ports.OutboxRepository
	lockouts    ports.LockoutStore
	gate        *OTPGate
	gateway     ports.PaymentGateway
	broadcaster ports.Broadcaster
	notifier    ports.Notifier
	hasher      ports.PasswordHasher
	tokenSigner ports.TokenSigner
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Principals  ports.PrincipalRepository
	Deliveries  ports.DeliveryRepository
	Payments    ports.PaymentRepository
	Outbox      ports.OutboxRepository
	Lockouts    ports.LockoutStore
	Challenges  ports.OTPChallengeStore
	Gateway     ports.PaymentGateway
	Broadcaster ports.Broadcaster
	Notifier    ports.Notifier
	Hasher      ports.PasswordHasher
	TokenSigner ports.TokenSigner
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "porter-dispatch-service"
	}
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.ScheduleLead <= 0 {
		cfg.ScheduleLead = domain.DefaultScheduleLead
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 100
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		cfg:         cfg,
		principals:  deps.Principals,
		deliveries:  deps.Deliveries,
		payments:    deps.Payments,
		outbox:      deps.Outbox,
		lockouts:    deps.Lockouts,
		gate:        NewOTPGate(deps.Challenges, deps.Notifier, cfg.OTPLength, cfg.OTPTTL, nowFn),
		gateway:     deps.Gateway,
		broadcaster: deps.Broadcaster,
		notifier:    deps.Notifier,
		hasher:      deps.Hasher,
		tokenSigner: deps.TokenSigner,
		nowFn:       nowFn,
	}
}

// OTP exposes the gate so adapters can issue and verify codes directly.
func (s *Service) OTP() *OTPGate {
	return s.gate
}

func appLogger() *slog.Logger {
	return slog.Default().With(
		"module", "application",
		"layer", "application",
	)
}
