package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
)

// GrantService drives the two-state signing-bonus and benefit sub-workflows.
// One service handles both kinds; every operation is parameterized by kind.
type GrantService interface {
	CreateGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, employeeID, entityName, amount string, paymentDate time.Time) (*entity.Grant, error)
	EditGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64, amount string, paymentDate time.Time) (*entity.Grant, error)
	ApproveGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64) (*entity.Grant, error)
	RejectGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64, reason string) (*entity.Grant, error)
	GetPendingGrants(ctx context.Context, kind entity.GrantKind) ([]*entity.Grant, error)
	GetGrantByID(ctx context.Context, kind entity.GrantKind, id int64) (*entity.Grant, error)
}

type grantServiceImpl struct {
	grantRepo port.GrantRepository
	locks     *RunLocks
	logger    Logger
}

// NewGrantService creates a new GrantService
func NewGrantService(grantRepo port.GrantRepository, locks *RunLocks, logger Logger) GrantService {
	return &grantServiceImpl{grantRepo: grantRepo, locks: locks, logger: logger}
}

func grantLockKey(kind entity.GrantKind, id int64) string {
	return fmt.Sprintf("grant:%s:%d", kind, id)
}

func parseGrantAmount(amount string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", entity.ErrInvalidAmount, amount)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: grant amount must be positive", entity.ErrInvalidAmount)
	}
	return value, nil
}

// CreateGrant registers a new pending grant, typically fed by onboarding or
// benefits enrollment.
func (s *grantServiceImpl) CreateGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, employeeID, entityName, amount string, paymentDate time.Time) (*entity.Grant, error) {
	if err := requireRole(actor, "createGrant", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}
	value, err := parseGrantAmount(amount)
	if err != nil {
		return nil, err
	}

	grant := &entity.Grant{
		Kind:        kind,
		EmployeeID:  employeeID,
		Entity:      entityName,
		GivenAmount: value,
		PaymentDate: paymentDate,
		Status:      entity.GrantPending,
	}
	if err := s.grantRepo.Create(ctx, grant); err != nil {
		return nil, err
	}

	s.logger.Info("Grant created",
		"kind", string(kind), "grant_id", grant.ID,
		"employee_id", employeeID, "amount", value.String(), "actor", actor.ID)
	return grant, nil
}

// EditGrant mutates amount and payment date in place. Only pending grants
// may be edited.
func (s *grantServiceImpl) EditGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64, amount string, paymentDate time.Time) (*entity.Grant, error) {
	if err := requireRole(actor, "editGrant", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}
	value, err := parseGrantAmount(amount)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(grantLockKey(kind, id))
	defer unlock()

	grant, err := s.grantRepo.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if grant.Status.IsTerminal() {
		return nil, fmt.Errorf("%s %d is %s: %w", kind, id, grant.Status, entity.ErrAlreadyDecided)
	}

	grant.GivenAmount = value
	grant.PaymentDate = paymentDate
	if err := s.grantRepo.Update(ctx, grant); err != nil {
		return nil, err
	}

	s.logger.Info("Grant updated",
		"kind", string(kind), "grant_id", id, "amount", value.String(), "actor", actor.ID)
	return grant, nil
}

// ApproveGrant decides the grant. Deciding an already-terminal grant fails
// with AlreadyDecided.
func (s *grantServiceImpl) ApproveGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64) (*entity.Grant, error) {
	return s.decide(ctx, actor, kind, id, entity.GrantApproved, "")
}

// RejectGrant decides the grant negatively. Reason is mandatory.
func (s *grantServiceImpl) RejectGrant(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64, reason string) (*entity.Grant, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejecting %s %d", entity.ErrReasonRequired, kind, id)
	}
	return s.decide(ctx, actor, kind, id, entity.GrantRejected, reason)
}

func (s *grantServiceImpl) decide(ctx context.Context, actor entity.Actor, kind entity.GrantKind, id int64, status entity.GrantStatus, reason string) (*entity.Grant, error) {
	operation := "approveGrant"
	if status == entity.GrantRejected {
		operation = "rejectGrant"
	}
	if err := requireRole(actor, operation, entity.RolePayrollManager, entity.RoleFinanceStaff); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(grantLockKey(kind, id))
	defer unlock()

	grant, err := s.grantRepo.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if grant.Status.IsTerminal() {
		return nil, fmt.Errorf("%s %d is %s: %w", kind, id, grant.Status, entity.ErrAlreadyDecided)
	}

	grant.Status = status
	grant.DecidedBy = actor.ID
	grant.Reason = reason
	if err := s.grantRepo.Update(ctx, grant); err != nil {
		return nil, err
	}

	s.logger.Info("Grant decided",
		"kind", string(kind), "grant_id", id, "status", string(status), "actor", actor.ID)
	return grant, nil
}

// GetPendingGrants lists undecided grants of a kind, oldest first
func (s *grantServiceImpl) GetPendingGrants(ctx context.Context, kind entity.GrantKind) ([]*entity.Grant, error) {
	return s.grantRepo.ListPending(ctx, kind)
}

// GetGrantByID returns one grant of a kind
func (s *grantServiceImpl) GetGrantByID(ctx context.Context, kind entity.GrantKind, id int64) (*entity.Grant, error) {
	return s.grantRepo.GetByID(ctx, kind, id)
}
