package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/pkg/database"
)

// GrantRepository persists signing-bonus and benefit grants
type GrantRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(db *database.DB, logger *zap.Logger) *GrantRepository {
	return &GrantRepository{db: db, logger: logger}
}

const grantColumns = `id, kind, employee_id, entity, given_amount, payment_date,
	status, decided_by, reason, created_at, updated_at`

// Create inserts a new pending grant
func (r *GrantRepository) Create(ctx context.Context, grant *entity.Grant) error {
	query := `
		INSERT INTO grants (kind, employee_id, entity, given_amount, payment_date, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(grant.Kind),
		grant.EmployeeID,
		grant.Entity,
		grant.GivenAmount.String(),
		grant.PaymentDate,
		string(grant.Status),
	)
	if err != nil {
		r.logger.Error("Failed to create grant",
			zap.String("kind", string(grant.Kind)),
			zap.String("employee_id", grant.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create grant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	grant.ID = id
	return nil
}

// GetByID retrieves one grant of the given kind
func (r *GrantRepository) GetByID(ctx context.Context, kind entity.GrantKind, id int64) (*entity.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants WHERE id = ? AND kind = ?`

	grant, err := r.scanGrant(r.db.Executor(ctx).QueryRowContext(ctx, query, id, string(kind)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %d: %w", kind, id, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get grant", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// ListPending returns all pending grants of a kind, oldest first
func (r *GrantRepository) ListPending(ctx context.Context, kind entity.GrantKind) ([]*entity.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants WHERE kind = ? AND status = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, string(kind), string(entity.GrantPending))
	if err != nil {
		r.logger.Error("Failed to list pending grants", zap.String("kind", string(kind)), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending grants: %w", err)
	}
	defer rows.Close()

	var grants []*entity.Grant
	for rows.Next() {
		grant, err := r.scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// CountPendingByEntity counts undecided grants of any kind for an entity
func (r *GrantRepository) CountPendingByEntity(ctx context.Context, entityName string) (int, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grants WHERE entity = ? AND status = ?`,
		entityName, string(entity.GrantPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending grants: %w", err)
	}
	return count, nil
}

// Update persists amount/date edits and decisions
func (r *GrantRepository) Update(ctx context.Context, grant *entity.Grant) error {
	query := `
		UPDATE grants
		SET given_amount = ?, payment_date = ?, status = ?, decided_by = ?,
		    reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND kind = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		grant.GivenAmount.String(),
		grant.PaymentDate,
		string(grant.Status),
		grant.DecidedBy,
		grant.Reason,
		grant.ID,
		string(grant.Kind),
	)
	if err != nil {
		r.logger.Error("Failed to update grant", zap.Int64("id", grant.ID), zap.Error(err))
		return fmt.Errorf("failed to update grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", grant.Kind, grant.ID, entity.ErrNotFound)
	}
	return nil
}

func (r *GrantRepository) scanGrant(row rowScanner) (*entity.Grant, error) {
	var g entity.Grant
	var kind, status, amount string

	err := row.Scan(
		&g.ID,
		&kind,
		&g.EmployeeID,
		&g.Entity,
		&amount,
		&g.PaymentDate,
		&status,
		&g.DecidedBy,
		&g.Reason,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Kind = entity.GrantKind(kind)
	g.Status = entity.GrantStatus(status)
	g.GivenAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored given_amount %q: %w", amount, err)
	}
	return &g, nil
}
