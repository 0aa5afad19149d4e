package repository

import (
	"context"
	"time"

	"github.com/healthbridge/verification-service/internal/domain"
)

// TanRepository defines persistence access for issued credentials.
type TanRepository interface {
	Insert(ctx context.Context, tan *domain.Tan) error
	GetByHash(ctx context.Context, tanHash string) (*domain.Tan, error)
	ExistsByHash(ctx context.Context, tanHash string) (bool, error)
	Redeem(ctx context.Context, tan *domain.Tan) error
	CountByTypeCreatedAfter(ctx context.Context, tanType domain.TanType, since time.Time) (int, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type tanRepository struct {
	db DB
}

// NewTanRepository returns a Postgres-backed implementation.
func NewTanRepository(db DB) TanRepository {
	return &tanRepository{db: db}
}

func (r *tanRepository) Insert(ctx context.Context, tan *domain.Tan) error {
	const query = `
        INSERT INTO tan (tan_hash, valid_from, valid_until, sot, redeemed, type, teletan_type)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, version, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		tan.TanHash,
		tan.ValidFrom,
		tan.ValidUntil,
		tan.SourceOfTrust,
		tan.Redeemed,
		tan.Type,
		tan.TeleTanType,
	).Scan(&tan.ID, &tan.Version, &tan.CreatedAt, &tan.UpdatedAt)
}

func (r *tanRepository) GetByHash(ctx context.Context, tanHash string) (*domain.Tan, error) {
	const query = `
        SELECT id, version, created_at, updated_at, tan_hash, valid_from, valid_until,
               sot, redeemed, type, teletan_type
        FROM tan WHERE tan_hash=$1`

	var tan domain.Tan
	if err := r.db.QueryRow(ctx, query, tanHash).Scan(
		&tan.ID,
		&tan.Version,
		&tan.CreatedAt,
		&tan.UpdatedAt,
		&tan.TanHash,
		&tan.ValidFrom,
		&tan.ValidUntil,
		&tan.SourceOfTrust,
		&tan.Redeemed,
		&tan.Type,
		&tan.TeleTanType,
	); err != nil {
		return nil, err
	}
	return &tan, nil
}

func (r *tanRepository) ExistsByHash(ctx context.Context, tanHash string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tan WHERE tan_hash=$1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, tanHash).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Redeem flips the redeemed flag exactly once. The redeemed=FALSE guard plus
// the version check make concurrent redemption attempts lose cleanly with
// ErrVersionConflict instead of double-redeeming.
func (r *tanRepository) Redeem(ctx context.Context, tan *domain.Tan) error {
	const query = `
        UPDATE tan
        SET redeemed = TRUE, version = version + 1, updated_at = NOW()
        WHERE id=$1 AND version=$2 AND redeemed = FALSE`

	cmd, err := r.db.Exec(ctx, query, tan.ID, tan.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	tan.Redeemed = true
	tan.Version++
	return nil
}

func (r *tanRepository) CountByTypeCreatedAfter(ctx context.Context, tanType domain.TanType, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM tan WHERE type=$1 AND created_at > $2`

	var count int
	if err := r.db.QueryRow(ctx, query, tanType, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *tanRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM tan WHERE created_at < $1`

	cmd, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
