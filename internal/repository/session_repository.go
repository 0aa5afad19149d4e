package repository

import (
	"context"
	"time"

	"github.com/healthbridge/verification-service/internal/domain"
)

// SessionRepository defines persistence access for registration sessions.
type SessionRepository interface {
	Insert(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	ExistsByIdentityHashes(ctx context.Context, hashes []string) (bool, error)
	IncrementTanCounter(ctx context.Context, session *domain.Session) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionRepository struct {
	db DB
}

// NewSessionRepository returns a Postgres-backed implementation.
func NewSessionRepository(db DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Insert(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO app_session
            (registration_token_hash, hashed_guid, hashed_guid_dob, tele_tan_hash, tan_counter, sot, teletan_type)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, version, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		session.RegistrationTokenHash,
		session.HashedGuid,
		session.HashedGuidDob,
		session.TeleTanHash,
		session.TanCounter,
		session.SourceOfTrust,
		session.TeleTanType,
	).Scan(&session.ID, &session.Version, &session.CreatedAt, &session.UpdatedAt)
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	const query = `
        SELECT id, version, created_at, updated_at, hashed_guid, hashed_guid_dob,
               registration_token_hash, tele_tan_hash, tan_counter, sot, teletan_type
        FROM app_session WHERE registration_token_hash=$1`

	var session domain.Session
	if err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.HashedGuid,
		&session.HashedGuidDob,
		&session.RegistrationTokenHash,
		&session.TeleTanHash,
		&session.TanCounter,
		&session.SourceOfTrust,
		&session.TeleTanType,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

// ExistsByIdentityHashes checks both identity columns so that a raw
// identifier can never be bound twice, regardless of which slot it was
// registered under.
func (r *sessionRepository) ExistsByIdentityHashes(ctx context.Context, hashes []string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM app_session
            WHERE hashed_guid = ANY($1) OR hashed_guid_dob = ANY($1)
        )`

	var exists bool
	if err := r.db.QueryRow(ctx, query, hashes).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// IncrementTanCounter bumps the counter under an optimistic version check.
// A lost race surfaces as ErrVersionConflict and never clobbers the winner.
func (r *sessionRepository) IncrementTanCounter(ctx context.Context, session *domain.Session) error {
	const query = `
        UPDATE app_session
        SET tan_counter = tan_counter + 1, version = version + 1, updated_at = NOW()
        WHERE id=$1 AND version=$2`

	cmd, err := r.db.Exec(ctx, query, session.ID, session.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	session.TanCounter++
	session.Version++
	return nil
}

func (r *sessionRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM app_session WHERE created_at < $1`

	cmd, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
