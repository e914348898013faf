package application

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/porter-dispatch/internal/contracts"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

func (s *Service) BlockPrincipal(ctx context.Context, actor Actor, principalID string) (domain.Principal, error) {
	return s.adminUpdatePrincipal(ctx, actor, principalID, domain.EventPrincipalBlocked, func(p *domain.Principal) error {
		if p.Role == domain.RoleAdmin {
			return fmt.Errorf("%w: administrators cannot be blocked", domain.ErrInvalidState)
		}
		p.Blocked = true
		return nil
	}, "Account blocked", "Your account has been blocked by an administrator.")
}

func (s *Service) UnblockPrincipal(ctx context.Context, actor Actor, principalID string) (domain.Principal, error) {
	return s.adminUpdatePrincipal(ctx, actor, principalID, domain.EventPrincipalUnblocked, func(p *domain.Principal) error {
		p.Blocked = false
		return nil
	}, "Account unblocked", "Your account has been unblocked. You can sign in again.")
}

func (s *Service) ApprovePorter(ctx context.Context, actor Actor, principalID string) (domain.Principal, error) {
	return s.adminUpdatePrincipal(ctx, actor, principalID, domain.EventPorterApproved, func(p *domain.Principal) error {
		if p.Role != domain.RolePorter {
			return fmt.Errorf("%w: principal is not a porter", domain.ErrInvalidState)
		}
		p.Approved = true
		return nil
	}, "Porter account approved", "Your porter account has been approved. You can now accept deliveries.")
}

func (s *Service) ListAllDeliveries(ctx context.Context, actor Actor, status string) ([]domain.Delivery, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrAccessDenied
	}
	filter := domain.DeliveryFilter{Limit: s.cfg.ListLimit}
	if status != "" {
		if !domain.IsValidDeliveryStatus(status) {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
		}
		filter.Statuses = []string{status}
	}
	return s.deliveries.List(ctx, filter)
}

func (s *Service) adminUpdatePrincipal(
	ctx context.Context,
	actor Actor,
	principalID string,
	eventType string,
	mutate func(*domain.Principal) error,
	subject, body string,
) (domain.Principal, error) {
	if !actor.IsAdmin() {
		return domain.Principal{}, domain.ErrAccessDenied
	}
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return domain.Principal{}, err
	}
	if err := mutate(&p); err != nil {
		return domain.Principal{}, err
	}
	now := s.nowFn()
	p.UpdatedAt = now
	if err := s.principals.Update(ctx, p); err != nil {
		return domain.Principal{}, err
	}

	s.enqueueEvent(ctx, eventType, p.ID, contracts.PrincipalEventPayload{
		PrincipalID: p.ID,
		Username:    p.Username,
		Role:        p.Role,
		ActorID:     actor.SubjectID,
		OccurredAt:  now.UTC().Format(time.RFC3339),
	}, now)
	s.broadcast(ctx, contracts.BroadcastMessage{Type: eventType, PrincipalID: p.ID, OccurredAt: now},
		domain.TopicAdmin, domain.UserTopic(p.ID))
	s.notifyPrincipal(ctx, p.ID, subject, body)
	return p, nil
}
