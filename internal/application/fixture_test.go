package application_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/porter-dispatch/internal/adapters/gateway"
	"github.com/viralforge/porter-dispatch/internal/adapters/memory"
	"github.com/viralforge/porter-dispatch/internal/adapters/security"
	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

const testPassword = "SecurePass123!"

// RSA key generation is slow; one signer serves every fixture.
var sharedSigner = sync.OnceValues(func() (*security.TokenSigner, error) {
	return security.NewEphemeralTokenSigner("porter-dispatch-test", "test-key")
})

type fixture struct {
	service     *application.Service
	deps        application.Dependencies
	repos       memory.Repositories
	otp         *memory.OTPStore
	lockouts    *memory.LockoutStore
	gateway     *gateway.Sandbox
	notifier    *recordingNotifier
	broadcaster *recordingBroadcaster
	clock       *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := sharedSigner()
	if err != nil {
		t.Fatalf("token signer: %v", err)
	}
	f := &fixture{
		repos:       memory.NewRepositories(),
		otp:         memory.NewOTPStore(),
		lockouts:    memory.NewLockoutStore(),
		gateway:     gateway.NewSandbox("rzp_test_key", "gateway-secret"),
		notifier:    &recordingNotifier{},
		broadcaster: &recordingBroadcaster{},
		clock:       &fakeClock{now: time.Now().UTC().Truncate(time.Second)},
	}
	f.deps = application.Dependencies{
		Config: application.Config{
			ServiceName:          "porter-dispatch-test",
			OTPLength:            6,
			OTPTTL:               5 * time.Minute,
			TokenTTL:             time.Hour,
			FailedLoginThreshold: 3,
			LockoutDuration:      15 * time.Minute,
			Currency:             "INR",
		},
		Principals:  f.repos.Principals,
		Deliveries:  f.repos.Deliveries,
		Payments:    f.repos.Payments,
		Outbox:      f.repos.Outbox,
		Lockouts:    f.lockouts,
		Challenges:  f.otp,
		Gateway:     f.gateway,
		Broadcaster: f.broadcaster,
		Notifier:    f.notifier,
		Hasher:      security.NewBcryptHasher(4),
		TokenSigner: signer,
		Clock:       f.clock.Now,
	}
	f.service = application.NewService(f.deps)
	return f
}

// rewired builds a second service over the same stores with some
// dependencies swapped.
func (f *fixture) rewired(swap func(*application.Dependencies)) *application.Service {
	deps := f.deps
	swap(&deps)
	return application.NewService(deps)
}

// principal stores an account directly, bypassing registration.
func (f *fixture) principal(t *testing.T, role string, approved bool) application.Actor {
	t.Helper()
	id := uuid.NewString()
	now := f.clock.Now()
	if err := f.repos.Principals.Create(context.Background(), domain.Principal{
		ID:        id,
		Username:  "user-" + id[:8],
		Email:     id[:8] + "@example.com",
		Role:      role,
		Verified:  true,
		Approved:  approved,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create principal: %v", err)
	}
	return application.Actor{SubjectID: id, Role: role}
}

func (f *fixture) customer(t *testing.T) application.Actor {
	return f.principal(t, domain.RoleCustomer, false)
}

func (f *fixture) porter(t *testing.T) application.Actor {
	return f.principal(t, domain.RolePorter, true)
}

func (f *fixture) admin(t *testing.T) application.Actor {
	return f.principal(t, domain.RoleAdmin, true)
}

func (f *fixture) createDelivery(t *testing.T, customer application.Actor) domain.Delivery {
	t.Helper()
	d, err := f.service.CreateDelivery(context.Background(), customer, application.CreateDeliveryInput{
		Pickup:      domain.Location{Address: "12 MG Road, Bengaluru"},
		Dropoff:     domain.Location{Address: "44 Residency Road, Bengaluru"},
		PackageType: "documents",
		WeightKg:    1.5,
		Amount:      25000,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return d
}

func (f *fixture) claimed(t *testing.T) (domain.Delivery, application.Actor, application.Actor) {
	t.Helper()
	customer := f.customer(t)
	porter := f.porter(t)
	d := f.createDelivery(t, customer)
	claimed, err := f.service.ClaimDelivery(context.Background(), porter, d.ID)
	if err != nil {
		t.Fatalf("claim delivery: %v", err)
	}
	return claimed, customer, porter
}

func (f *fixture) eventTypes() []string {
	events := f.repos.Outbox.Events()
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func (f *fixture) hasEvent(eventType string) bool {
	for _, got := range f.eventTypes() {
		if got == eventType {
			return true
		}
	}
	return false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	destination string
	subject     string
	body        string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, destination, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{destination: destination, subject: subject, body: body})
	return nil
}

func (n *recordingNotifier) failWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *recordingNotifier) subjects(destination string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		if m.destination == destination {
			out = append(out, m.subject)
		}
	}
	return out
}

var otpPattern = regexp.MustCompile(`code is (\d+)\.`)

// lastOTP returns the most recent one-time code mailed to destination.
func (n *recordingNotifier) lastOTP(t *testing.T, destination string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].destination != destination {
			continue
		}
		if m := otpPattern.FindStringSubmatch(n.sent[i].body); m != nil {
			return m[1]
		}
	}
	t.Fatalf("no otp sent to %s", destination)
	return ""
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (b *recordingBroadcaster) Publish(_ context.Context, topic string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.topics = append(b.topics, topic)
	return nil
}

func (b *recordingBroadcaster) published(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, got := range b.topics {
		if got == topic {
			return true
		}
	}
	return false
}

var errInjected = errors.New("injected failure")
