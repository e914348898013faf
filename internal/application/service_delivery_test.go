package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

func TestCreateDeliveryStartsPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)

	d := f.createDelivery(t, customer)
	if d.Status != domain.DeliveryStatusPending || d.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected initial state %s/%s", d.Status, d.PaymentStatus)
	}
	if d.PorterID != "" {
		t.Fatalf("new delivery should be unassigned")
	}
	if want := f.clock.Now().Add(domain.DefaultScheduleLead); !d.ScheduledTime.Equal(want) {
		t.Fatalf("expected scheduled time %v, got %v", want, d.ScheduledTime)
	}

	log, err := f.service.TrackingLog(ctx, customer, d.ID)
	if err != nil {
		t.Fatalf("tracking log: %v", err)
	}
	if len(log) != 1 || log[0].Status != domain.DeliveryStatusPending || log[0].Sequence != 1 {
		t.Fatalf("expected one PENDING tracking point, got %+v", log)
	}
	if !f.hasEvent(domain.EventDeliveryCreated) {
		t.Fatalf("expected %s in outbox, got %v", domain.EventDeliveryCreated, f.eventTypes())
	}
	if !f.broadcaster.published(domain.TopicPorters) || !f.broadcaster.published(domain.UserTopic(customer.SubjectID)) {
		t.Fatalf("expected porters and owner topics to be notified")
	}
}

func TestCreateDeliveryHonoursScheduledTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	at := f.clock.Now().Add(6 * time.Hour)
	d, err := f.service.CreateDelivery(context.Background(), f.customer(t), application.CreateDeliveryInput{
		Pickup:        domain.Location{Address: "a"},
		Dropoff:       domain.Location{Address: "b"},
		PackageType:   "parcel",
		WeightKg:      2,
		Amount:        1000,
		ScheduledTime: &at,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if !d.ScheduledTime.Equal(at) {
		t.Fatalf("expected scheduled time %v, got %v", at, d.ScheduledTime)
	}
}

func TestCreateDeliveryValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)

	valid := application.CreateDeliveryInput{
		Pickup:      domain.Location{Address: "a"},
		Dropoff:     domain.Location{Address: "b"},
		PackageType: "parcel",
		WeightKg:    1,
		Amount:      100,
	}
	cases := map[string]func(in *application.CreateDeliveryInput){
		"missing pickup":  func(in *application.CreateDeliveryInput) { in.Pickup.Address = " " },
		"missing dropoff": func(in *application.CreateDeliveryInput) { in.Dropoff.Address = "" },
		"missing package": func(in *application.CreateDeliveryInput) { in.PackageType = "" },
		"zero weight":     func(in *application.CreateDeliveryInput) { in.WeightKg = 0 },
		"negative amount": func(in *application.CreateDeliveryInput) { in.Amount = -5 },
	}
	for name, mutate := range cases {
		in := valid
		mutate(&in)
		if _, err := f.service.CreateDelivery(ctx, customer, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	if _, err := f.service.CreateDelivery(ctx, f.porter(t), valid); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected porters to be denied, got %v", err)
	}
}

func TestConcurrentClaimsHaveExactlyOneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	d := f.createDelivery(t, f.customer(t))

	const porters = 10
	actors := make([]application.Actor, porters)
	for i := range actors {
		actors[i] = f.porter(t)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	start := make(chan struct{})
	for _, actor := range actors {
		wg.Add(1)
		go func(actor application.Actor) {
			defer wg.Done()
			<-start
			_, err := f.service.ClaimDelivery(ctx, actor, d.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, actor.SubjectID)
			case errors.Is(err, domain.ErrAlreadyClaimed):
				losers++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}(actor)
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 || losers != porters-1 {
		t.Fatalf("expected 1 winner and %d losers, got %d winners and %d losers", porters-1, len(winners), losers)
	}
	got, err := f.service.GetDelivery(ctx, application.Actor{SubjectID: winners[0], Role: domain.RolePorter}, d.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if got.Status != domain.DeliveryStatusAccepted || got.PorterID != winners[0] {
		t.Fatalf("expected ACCEPTED by %s, got %s by %s", winners[0], got.Status, got.PorterID)
	}
	log, err := f.repos.Deliveries.ListTracking(ctx, d.ID)
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected exactly one claim tracking point, got %d points", len(log))
	}
}

func TestClaimAlreadyClaimedIsConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d, _, _ := f.claimed(t)

	_, err := f.service.ClaimDelivery(context.Background(), f.porter(t), d.ID)
	if !errors.Is(err, domain.ErrAlreadyClaimed) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected already-claimed conflict, got %v", err)
	}
}

func TestClaimRequiresActivePorter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	d := f.createDelivery(t, f.customer(t))

	unapproved := f.principal(t, domain.RolePorter, false)
	if _, err := f.service.ClaimDelivery(ctx, unapproved, d.ID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected unapproved porter to be denied, got %v", err)
	}
	if _, err := f.service.ClaimDelivery(ctx, f.customer(t), d.ID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected customer to be denied, got %v", err)
	}
	if _, err := f.service.ClaimDelivery(ctx, f.porter(t), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdvanceFollowsTransportChain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	d, customer, porter := f.claimed(t)

	if _, err := f.service.AdvanceDelivery(ctx, porter, application.AdvanceInput{
		DeliveryID: d.ID, TargetStatus: domain.DeliveryStatusInTransit,
	}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected skipped step to be rejected, got %v", err)
	}
	if _, err := f.service.AdvanceDelivery(ctx, f.porter(t), application.AdvanceInput{
		DeliveryID: d.ID, TargetStatus: domain.DeliveryStatusPickedUp,
	}); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected other porter to be denied, got %v", err)
	}
	if _, err := f.service.AdvanceDelivery(ctx, porter, application.AdvanceInput{
		DeliveryID: d.ID, TargetStatus: "TELEPORTED",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown status to be rejected, got %v", err)
	}

	lat, lon := 12.97, 77.59
	for _, target := range []string{domain.DeliveryStatusPickedUp, domain.DeliveryStatusInTransit, domain.DeliveryStatusDelivered} {
		got, err := f.service.AdvanceDelivery(ctx, porter, application.AdvanceInput{
			DeliveryID: d.ID, TargetStatus: target, Lat: &lat, Lon: &lon,
		})
		if err != nil {
			t.Fatalf("advance to %s: %v", target, err)
		}
		if got.Status != target {
			t.Fatalf("expected %s, got %s", target, got.Status)
		}
	}

	if _, err := f.service.AdvanceDelivery(ctx, porter, application.AdvanceInput{
		DeliveryID: d.ID, TargetStatus: domain.DeliveryStatusDelivered,
	}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected terminal delivery to reject advance, got %v", err)
	}

	log, err := f.service.TrackingLog(ctx, customer, d.ID)
	if err != nil {
		t.Fatalf("tracking log: %v", err)
	}
	wantStatuses := []string{
		domain.DeliveryStatusPending,
		domain.DeliveryStatusAccepted,
		domain.DeliveryStatusPickedUp,
		domain.DeliveryStatusInTransit,
		domain.DeliveryStatusDelivered,
	}
	if len(log) != len(wantStatuses) {
		t.Fatalf("expected %d tracking points, got %d", len(wantStatuses), len(log))
	}
	for i, point := range log {
		if point.Status != wantStatuses[i] || point.Sequence != int64(i+1) {
			t.Fatalf("tracking point %d: got %s/%d", i, point.Status, point.Sequence)
		}
	}
	if log[2].Lat == nil || *log[2].Lat != lat {
		t.Fatalf("expected coordinates on advance tracking point")
	}

	email := customer.SubjectID[:8] + "@example.com"
	var reminded bool
	for _, subject := range f.notifier.subjects(email) {
		if subject == "Payment pending for your delivery" {
			reminded = true
		}
	}
	if !reminded {
		t.Fatalf("expected unpaid reminder after delivery, got %v", f.notifier.subjects(email))
	}
}

func TestCancelDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	d := f.createDelivery(t, customer)

	if _, err := f.service.CancelDelivery(ctx, f.customer(t), d.ID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected other customer to be denied, got %v", err)
	}

	cancelled, err := f.service.CancelDelivery(ctx, customer, d.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.DeliveryStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if _, err := f.service.CancelDelivery(ctx, customer, d.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second cancel to fail, got %v", err)
	}
	if _, err := f.service.ClaimDelivery(ctx, f.porter(t), d.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected claim of cancelled delivery to fail, got %v", err)
	}
	if !f.hasEvent(domain.EventDeliveryCancelled) {
		t.Fatalf("expected %s in outbox", domain.EventDeliveryCancelled)
	}
}

func TestCancelAfterClaimIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d, customer, _ := f.claimed(t)

	if _, err := f.service.CancelDelivery(context.Background(), customer, d.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected claimed delivery to reject cancel, got %v", err)
	}
}

func TestDeleteOnlyCancelledDeliveries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	d := f.createDelivery(t, customer)

	if err := f.service.DeleteDelivery(ctx, customer, d.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected pending delivery to reject delete, got %v", err)
	}
	if _, err := f.service.CancelDelivery(ctx, customer, d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.service.DeleteDelivery(ctx, f.customer(t), d.ID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected other customer to be denied, got %v", err)
	}
	if err := f.service.DeleteDelivery(ctx, customer, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.service.GetDelivery(ctx, customer, d.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted delivery to be gone, got %v", err)
	}
	if !f.hasEvent(domain.EventDeliveryDeleted) {
		t.Fatalf("expected %s in outbox", domain.EventDeliveryDeleted)
	}
}

func TestAdminCanDeleteCancelledDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	d := f.createDelivery(t, customer)
	if _, err := f.service.CancelDelivery(ctx, customer, d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.service.DeleteDelivery(ctx, f.admin(t), d.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestDeliveryQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	porter := f.porter(t)

	pending := f.createDelivery(t, customer)
	active := f.createDelivery(t, customer)
	done := f.createDelivery(t, customer)
	for _, id := range []string{active.ID, done.ID} {
		if _, err := f.service.ClaimDelivery(ctx, porter, id); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}
	for _, target := range []string{domain.DeliveryStatusPickedUp, domain.DeliveryStatusInTransit, domain.DeliveryStatusDelivered} {
		if _, err := f.service.AdvanceDelivery(ctx, porter, application.AdvanceInput{DeliveryID: done.ID, TargetStatus: target}); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	assertIDs := func(name string, got []domain.Delivery, err error, want ...string) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: expected %d deliveries, got %d", name, len(want), len(got))
		}
		seen := map[string]bool{}
		for _, d := range got {
			seen[d.ID] = true
		}
		for _, id := range want {
			if !seen[id] {
				t.Fatalf("%s: missing delivery %s", name, id)
			}
		}
	}

	mine, err := f.service.ListCustomerDeliveries(ctx, customer)
	assertIDs("customer", mine, err, pending.ID, active.ID, done.ID)
	available, err := f.service.ListAvailableDeliveries(ctx, porter)
	assertIDs("available", available, err, pending.ID)
	current, err := f.service.ListActiveDeliveries(ctx, porter)
	assertIDs("active", current, err, active.ID)
	history, err := f.service.ListDeliveryHistory(ctx, porter)
	assertIDs("history", history, err, done.ID)
	all, err := f.service.ListAllDeliveries(ctx, f.admin(t), domain.DeliveryStatusAccepted)
	assertIDs("admin accepted", all, err, active.ID)

	if _, err := f.service.ListAllDeliveries(ctx, customer, ""); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected non-admin to be denied, got %v", err)
	}
	if _, err := f.service.ListAvailableDeliveries(ctx, customer); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected customer to be denied available list, got %v", err)
	}
}

func TestGetDeliveryVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	d := f.createDelivery(t, customer)

	if _, err := f.service.GetDelivery(ctx, f.porter(t), d.ID); err != nil {
		t.Fatalf("porters may view pending deliveries: %v", err)
	}
	if _, err := f.service.GetDelivery(ctx, f.customer(t), d.ID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected other customer to be denied, got %v", err)
	}

	claimedBy := f.porter(t)
	if _, err := f.service.ClaimDelivery(ctx, claimedBy, d.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.service.GetDelivery(ctx, f.porter(t), d.ID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected unrelated porter to be denied after claim, got %v", err)
	}
	if _, err := f.service.GetDelivery(ctx, claimedBy, d.ID); err != nil {
		t.Fatalf("assigned porter should see delivery: %v", err)
	}
}
