package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/porter-dispatch/internal/adapters/memory"
	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

func (f *fixture) register(t *testing.T, username, role string) application.RegisterResult {
	t.Helper()
	res, err := f.service.Register(context.Background(), application.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return res
}

func (f *fixture) login(t *testing.T, username string) (application.SessionResult, error) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.Login(ctx, username, testPassword); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return f.service.VerifyLogin(ctx, username, f.notifier.lastOTP(t, username+"@example.com"))
}

func TestRegisterLoginVerifyValidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "asha", "customer")
	if !reg.RequiresOTP || reg.PrincipalID == "" {
		t.Fatalf("unexpected register result %+v", reg)
	}

	session, err := f.login(t, "asha")
	if err != nil {
		t.Fatalf("verify login: %v", err)
	}
	if session.Token == "" || session.Role != domain.RoleCustomer || session.PrincipalID != reg.PrincipalID {
		t.Fatalf("unexpected session %+v", session)
	}

	claims, err := f.service.ValidateToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.PrincipalID != reg.PrincipalID || claims.Role != domain.RoleCustomer {
		t.Fatalf("unexpected claims %+v", claims)
	}

	p, err := f.repos.Principals.GetByID(ctx, reg.PrincipalID)
	if err != nil {
		t.Fatalf("load principal: %v", err)
	}
	if !p.Verified {
		t.Fatalf("expected principal to be verified after otp login")
	}

	if _, err := f.service.ValidateToken(ctx, "garbage"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected garbage token to be unauthorized, got %v", err)
	}
}

type unwritableChallenges struct {
	*memory.OTPStore
}

func (unwritableChallenges) Put(context.Context, domain.OTPChallenge) error {
	return errInjected
}

func TestRegisterSucceedsWhenOTPIssueFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	degraded := f.rewired(func(deps *application.Dependencies) {
		deps.Challenges = unwritableChallenges{OTPStore: f.otp}
	})

	res, err := degraded.Register(ctx, application.RegisterInput{
		Username: "meera",
		Email:    "meera@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("register must not fail once the account is stored: %v", err)
	}
	if !res.RequiresOTP || res.PrincipalID == "" {
		t.Fatalf("unexpected register result %+v", res)
	}
	if _, err := f.repos.Principals.GetByUsername(ctx, "meera"); err != nil {
		t.Fatalf("principal should exist: %v", err)
	}

	session, err := f.login(t, "meera")
	if err != nil {
		t.Fatalf("login after degraded registration: %v", err)
	}
	if session.PrincipalID != res.PrincipalID {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestRegisterRejectsDuplicatesAndAdminRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "asha", "")

	_, err := f.service.Register(ctx, application.RegisterInput{
		Username: "ASHA", Email: "other@example.com", Password: testPassword,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate username conflict, got %v", err)
	}
	_, err = f.service.Register(ctx, application.RegisterInput{
		Username: "root", Email: "root@example.com", Password: testPassword, Role: "admin",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected admin self-registration to be rejected, got %v", err)
	}
	_, err = f.service.Register(ctx, application.RegisterInput{
		Username: "shorty", Email: "shorty@example.com", Password: "short",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected short password to be rejected, got %v", err)
	}
	_, err = f.service.Register(ctx, application.RegisterInput{
		Username: "mail", Email: "not-an-email", Password: testPassword,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected bad email to be rejected, got %v", err)
	}
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "asha", "")

	for i := 0; i < 2; i++ {
		if _, err := f.service.Login(ctx, "asha", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if _, err := f.service.Login(ctx, "asha", "wrong-password"); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lockout on threshold, got %v", err)
	}
	if _, err := f.service.Login(ctx, "asha", testPassword); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lockout to hold for correct password, got %v", err)
	}

	f.clock.Advance(16 * time.Minute)
	if _, err := f.service.Login(ctx, "asha", testPassword); err != nil {
		t.Fatalf("login after lockout window: %v", err)
	}
	if _, err := f.service.Login(ctx, "nobody", testPassword); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected unknown user to look like bad credentials, got %v", err)
	}
}

func TestPorterNeedsApproval(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ravi", "porter")

	if _, err := f.login(t, "ravi"); !errors.Is(err, domain.ErrPorterNotApproved) {
		t.Fatalf("expected unapproved porter to be refused a session, got %v", err)
	}

	approved, err := f.service.ApprovePorter(ctx, f.admin(t), reg.PrincipalID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.Approved {
		t.Fatalf("expected approved flag")
	}
	session, err := f.login(t, "ravi")
	if err != nil {
		t.Fatalf("login after approval: %v", err)
	}
	if session.Role != domain.RolePorter {
		t.Fatalf("expected porter session, got %s", session.Role)
	}
	if !f.hasEvent(domain.EventPorterApproved) {
		t.Fatalf("expected %s in outbox", domain.EventPorterApproved)
	}
}

func TestBlockedPrincipalLosesAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "asha", "")
	session, err := f.login(t, "asha")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	admin := f.admin(t)
	if _, err := f.service.BlockPrincipal(ctx, admin, reg.PrincipalID); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := f.service.ValidateToken(ctx, session.Token); !errors.Is(err, domain.ErrAccountBlocked) {
		t.Fatalf("expected existing token to be refused, got %v", err)
	}
	if _, err := f.service.Login(ctx, "asha", testPassword); !errors.Is(err, domain.ErrAccountBlocked) {
		t.Fatalf("expected blocked login, got %v", err)
	}
	if !f.broadcaster.published(domain.UserTopic(reg.PrincipalID)) {
		t.Fatalf("expected principal topic broadcast")
	}

	if _, err := f.service.UnblockPrincipal(ctx, admin, reg.PrincipalID); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if _, err := f.service.ValidateToken(ctx, session.Token); err != nil {
		t.Fatalf("token should validate after unblock: %v", err)
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)

	if _, err := f.service.BlockPrincipal(ctx, customer, customer.SubjectID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected non-admin block to be denied, got %v", err)
	}
	if _, err := f.service.ApprovePorter(ctx, f.admin(t), customer.SubjectID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected approving a customer to fail, got %v", err)
	}
	admin := f.admin(t)
	if _, err := f.service.BlockPrincipal(ctx, f.admin(t), admin.SubjectID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected admins to be unblockable, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "asha", "")

	if err := f.service.RequestPasswordReset(ctx, "nobody"); err != nil {
		t.Fatalf("unknown user reset should be silent: %v", err)
	}
	if err := f.service.RequestPasswordReset(ctx, "asha"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	code := f.notifier.lastOTP(t, "asha@example.com")
	if err := f.service.ResetPassword(ctx, "asha", code, "BrandNewPass9"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := f.service.ResetPassword(ctx, "asha", code, "AnotherPass9"); !errors.Is(err, domain.ErrOTPInvalid) {
		t.Fatalf("expected reused reset code to fail, got %v", err)
	}

	if _, err := f.service.Login(ctx, "asha", testPassword); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
	if _, err := f.service.Login(ctx, "asha", "BrandNewPass9"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := f.service.SeedAdmin(ctx, "Root", "root@example.com", "RootPass123"); err != nil {
			t.Fatalf("seed admin: %v", err)
		}
	}
	p, err := f.repos.Principals.GetByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if p.Role != domain.RoleAdmin || !p.Verified {
		t.Fatalf("unexpected seeded admin %+v", p)
	}
}
