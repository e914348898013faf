package application

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/metrics"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

const otpSubject = "Your login code"

// OTPGate issues and redeems single-use numeric codes, one live code per subject.
type OTPGate struct {
	store    ports.OTPChallengeStore
	notifier ports.Notifier
	length   int
	ttl      time.Duration
	nowFn    func() time.Time
}

func NewOTPGate(store ports.OTPChallengeStore, notifier ports.Notifier, length int, ttl time.Duration, nowFn func() time.Time) *OTPGate {
	if length <= 0 {
		length = 6
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &OTPGate{store: store, notifier: notifier, length: length, ttl: ttl, nowFn: nowFn}
}

// Issue replaces the subject's challenge with a fresh code and hands the code to
// the notifier. The challenge is stored before delivery is attempted, and a
// delivery failure does not fail the issue.
func (g *OTPGate) Issue(ctx context.Context, subjectID, destination string) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	code, err := randomDigits(g.length)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	now := g.nowFn()
	if err := g.store.Put(ctx, domain.OTPChallenge{
		SubjectID: subjectID,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.ttl),
	}); err != nil {
		return "", fmt.Errorf("store otp challenge: %w", err)
	}
	metrics.OTPIssuedTotal.Inc()

	if g.notifier != nil && strings.TrimSpace(destination) != "" {
		body := fmt.Sprintf("Your one-time code is %s. It expires in %d minutes.", code, int(g.ttl.Minutes()))
		if err := g.notifier.Notify(ctx, destination, otpSubject, body); err != nil {
			appLogger().WarnContext(ctx, "otp delivery failed",
				"operation", "otp_issue",
				"outcome", "failure",
				"subject_id", subjectID,
				"error", err,
			)
		}
	}
	return code, nil
}

// Verify redeems the code. Any failure, including store errors, is reported as
// domain.ErrOTPInvalid so callers cannot tell the causes apart.
func (g *OTPGate) Verify(ctx context.Context, subjectID, candidate string) error {
	ctx, span := tracer.Start(ctx, "otp.verify")
	defer span.End()

	subjectID = strings.TrimSpace(subjectID)
	candidate = strings.TrimSpace(candidate)
	if subjectID == "" || len(candidate) != g.length {
		span.SetAttributes(attribute.Bool("otp.accepted", false))
		metrics.OTPVerificationsTotal.WithLabelValues("rejected").Inc()
		return domain.ErrOTPInvalid
	}
	ok, err := g.store.Consume(ctx, subjectID, candidate, g.nowFn())
	if err != nil {
		appLogger().ErrorContext(ctx, "otp store unavailable",
			"operation", "otp_verify",
			"outcome", "failure",
			"subject_id", subjectID,
			"error", err,
		)
		ok = false
	}
	span.SetAttributes(attribute.Bool("otp.accepted", ok))
	if !ok {
		metrics.OTPVerificationsTotal.WithLabelValues("rejected").Inc()
		return domain.ErrOTPInvalid
	}
	metrics.OTPVerificationsTotal.WithLabelValues("accepted").Inc()
	return nil
}

// randomDigits draws each digit uniformly from crypto/rand.
func randomDigits(size int) (string, error) {
	var b strings.Builder
	b.Grow(size)
	ten := big.NewInt(10)
	for i := 0; i < size; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
