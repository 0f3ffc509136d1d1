package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

const operatorColumns = `id, email, password_hash, display_name, role, active, last_login_at, created_at, updated_at`

// OperatorRepository reads planner operator accounts.
type OperatorRepository struct {
	db *sqlx.DB
}

func NewOperatorRepository(db *sqlx.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// FindByEmail matches case-insensitively. sql.ErrNoRows is returned unwrapped.
func (r *OperatorRepository) FindByEmail(ctx context.Context, email string) (*models.Operator, error) {
	return r.findOne(ctx, `lower(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *OperatorRepository) FindByID(ctx context.Context, id string) (*models.Operator, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *OperatorRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE ` + where + ` LIMIT 1`
	var op models.Operator
	if err := r.db.GetContext(ctx, &op, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find operator: %w", err)
	}
	return &op, nil
}

// TouchLastLogin stamps a successful login.
func (r *OperatorRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE operators SET last_login_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}
