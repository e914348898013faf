package application

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

const minPasswordLength = 8

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	username := normalizeUsername(in.Username)
	if username == "" {
		return RegisterResult{}, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if len(in.Password) < minPasswordLength {
		return RegisterResult{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}
	role := domain.NormalizeRole(in.Role)
	if role == "" {
		role = domain.RoleCustomer
	}
	if role != domain.RoleCustomer && role != domain.RolePorter {
		return RegisterResult{}, fmt.Errorf("%w: role must be CUSTOMER or PORTER", domain.ErrValidation)
	}

	if _, err := s.principals.GetByUsername(ctx, username); err == nil {
		return RegisterResult{}, fmt.Errorf("%w: username already taken", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return RegisterResult{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.nowFn()
	p := domain.Principal{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return RegisterResult{}, err
	}

	s.notifyPrincipal(ctx, p.ID, "Welcome to Porter", fmt.Sprintf("Hi %s, your %s account has been created.", p.Username, strings.ToLower(p.Role)))
	// The account exists from here on; logging in issues a fresh code.
	if _, err := s.gate.Issue(ctx, p.ID, p.Email); err != nil {
		appLogger().ErrorContext(ctx, "registration otp not issued",
			"operation", "register",
			"outcome", "degraded",
			"principal_id", p.ID,
			"error", err,
		)
	}
	return RegisterResult{PrincipalID: p.ID, RequiresOTP: true}, nil
}

// Login checks the password and, on success, sends an OTP. No token is minted here.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	lockKey := "login:" + username
	if s.lockouts != nil {
		state, err := s.lockouts.Get(ctx, lockKey)
		if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
			appLogger().WarnContext(ctx, "account lockout active",
				"operation", "login",
				"outcome", "blocked",
				"username", username,
				"locked_until", state.LockedUntil,
			)
			return LoginResult{}, domain.ErrAccountLocked
		}
	}

	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return LoginResult{}, domain.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if p.Blocked {
		return LoginResult{}, domain.ErrAccountBlocked
	}
	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		return LoginResult{}, s.recordLoginFailure(ctx, lockKey)
	}
	if s.lockouts != nil {
		_ = s.lockouts.Clear(ctx, lockKey)
	}

	if _, err := s.gate.Issue(ctx, p.ID, p.Email); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{RequiresOTP: true, Message: "otp sent to registered email"}, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, lockKey string) error {
	if s.lockouts == nil {
		return domain.ErrInvalidCredentials
	}
	now := s.nowFn()
	state, err := s.lockouts.RecordFailure(ctx, lockKey, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
	if err != nil {
		appLogger().ErrorContext(ctx, "failed to update lockout state",
			"operation", "login",
			"outcome", "failure",
			"error", err,
		)
		return domain.ErrInvalidCredentials
	}
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		return domain.ErrAccountLocked
	}
	return domain.ErrInvalidCredentials
}

// VerifyLogin redeems the login OTP and mints a session token.
func (s *Service) VerifyLogin(ctx context.Context, username, code string) (SessionResult, error) {
	p, err := s.redeemOTP(ctx, username, code)
	if err != nil {
		return SessionResult{}, err
	}
	if !p.Verified {
		p.Verified = true
		p.UpdatedAt = s.nowFn()
		if err := s.principals.Update(ctx, p); err != nil {
			return SessionResult{}, err
		}
	}
	if err := p.CanHoldSession(); err != nil {
		return SessionResult{}, err
	}
	return s.mintSession(p)
}

// RequestPasswordReset sends an OTP when the account exists. Unknown usernames
// get the same response.
func (s *Service) RequestPasswordReset(ctx context.Context, username string) error {
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.Blocked {
		return nil
	}
	_, err = s.gate.Issue(ctx, p.ID, p.Email)
	return err
}

func (s *Service) ResetPassword(ctx context.Context, username, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}
	p, err := s.redeemOTP(ctx, username, code)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.PasswordHash = hash
	p.Verified = true
	p.UpdatedAt = s.nowFn()
	if err := s.principals.Update(ctx, p); err != nil {
		return err
	}
	if s.lockouts != nil {
		_ = s.lockouts.Clear(ctx, "login:"+p.Username)
	}
	s.notifyPrincipal(ctx, p.ID, "Password changed", "Your password was reset. If this was not you, contact support.")
	return nil
}

// redeemOTP resolves the principal and consumes its code. Unknown users fail the
// same way as wrong codes.
func (s *Service) redeemOTP(ctx context.Context, username, code string) (domain.Principal, error) {
	username = normalizeUsername(username)
	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, domain.ErrOTPInvalid
		}
		return domain.Principal{}, err
	}
	if err := s.gate.Verify(ctx, p.ID, code); err != nil {
		return domain.Principal{}, err
	}
	return p, nil
}

func (s *Service) mintSession(p domain.Principal) (SessionResult, error) {
	now := s.nowFn()
	expiresAt := now.Add(s.cfg.TokenTTL)
	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		PrincipalID: p.ID,
		Username:    p.Username,
		Role:        p.Role,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return SessionResult{}, fmt.Errorf("sign token: %w", err)
	}
	return SessionResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		PrincipalID: p.ID,
		Username:    p.Username,
		Role:        p.Role,
	}, nil
}

// ValidateToken parses the bearer token and re-checks the principal, so a block
// takes effect before the token expires.
func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	p, err := s.principals.GetByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ports.AuthClaims{}, domain.ErrUnauthorized
		}
		return ports.AuthClaims{}, err
	}
	if p.Blocked {
		return ports.AuthClaims{}, domain.ErrAccountBlocked
	}
	claims.Role = p.Role
	return claims, nil
}

// SeedAdmin creates the bootstrap administrator when it does not exist yet.
func (s *Service) SeedAdmin(ctx context.Context, username, email, password string) error {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.principals.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.nowFn()
	return s.principals.Create(ctx, domain.Principal{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Verified:     true,
		Approved:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	return email, nil
}
