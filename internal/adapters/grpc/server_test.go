package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/porter-dispatch/internal/adapters/gateway"
	"github.com/viralforge/porter-dispatch/internal/adapters/memory"
	"github.com/viralforge/porter-dispatch/internal/adapters/security"
	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, string, string, string) error { return nil }

type discardBroadcaster struct{}

func (discardBroadcaster) Publish(context.Context, string, []byte) error { return nil }

func newTestServer(t *testing.T) (*Server, memory.Repositories, *security.TokenSigner) {
	t.Helper()
	signer, err := security.NewEphemeralTokenSigner("porter-dispatch-test", "grpc-test")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	repos := memory.NewRepositories()
	svc := application.NewService(application.Dependencies{
		Principals:  repos.Principals,
		Deliveries:  repos.Deliveries,
		Payments:    repos.Payments,
		Outbox:      repos.Outbox,
		Lockouts:    memory.NewLockoutStore(),
		Challenges:  memory.NewOTPStore(),
		Gateway:     gateway.NewSandbox("rzp_test_key", "secret"),
		Broadcaster: discardBroadcaster{},
		Notifier:    discardNotifier{},
		Hasher:      security.NewBcryptHasher(4),
		TokenSigner: signer,
	})
	return NewServer(svc), repos, signer
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func TestInternalServiceLookups(t *testing.T) {
	t.Parallel()

	srv, repos, signer := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repos.Principals.Create(ctx, domain.Principal{
		ID: "principal-1", Username: "asha", Role: domain.RoleCustomer, Verified: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create principal: %v", err)
	}
	token, err := signer.Sign(ports.AuthClaims{PrincipalID: "principal-1", Username: "asha", Role: domain.RoleCustomer, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	resp, err := srv.ValidateToken(ctx, request(t, map[string]any{"token": token}))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if resp.GetFields()["principal_id"].GetStringValue() != "principal-1" || !resp.GetFields()["valid"].GetBoolValue() {
		t.Fatalf("unexpected response %v", resp)
	}
	if _, err := srv.ValidateToken(ctx, request(t, map[string]any{"token": "junk"})); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	if _, err := srv.ValidateToken(ctx, request(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	d := domain.Delivery{
		ID: "delivery-1", CustomerID: "principal-1", Status: domain.DeliveryStatusPending,
		PaymentStatus: domain.PaymentStatusPending, Amount: 1200, Version: 1, CreatedAt: now, UpdatedAt: now, ScheduledTime: now,
	}
	if err := repos.Deliveries.Create(ctx, d, domain.TrackingPoint{ID: "t1", DeliveryID: d.ID, Status: d.Status, RecordedAt: now}); err != nil {
		t.Fatalf("create delivery: %v", err)
	}

	got, err := srv.GetDelivery(ctx, request(t, map[string]any{"delivery_id": "delivery-1"}))
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if got.GetFields()["status"].GetStringValue() != domain.DeliveryStatusPending || got.GetFields()["amount"].GetNumberValue() != 1200 {
		t.Fatalf("unexpected delivery %v", got)
	}
	if _, err := srv.GetDelivery(ctx, request(t, map[string]any{"delivery_id": "missing"})); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	tracking, err := srv.GetTracking(ctx, request(t, map[string]any{"delivery_id": "delivery-1"}))
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if n := len(tracking.GetFields()["points"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected one tracking point, got %d", n)
	}
}
