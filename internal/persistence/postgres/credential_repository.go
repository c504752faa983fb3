package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plannerhq/schedsync/internal/domain"
)

// CredentialRepository persists OAuth credentials per (user, provider).
// It implements the token lifecycle manager's CredentialStore.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository constructs a CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Get loads the credential record, or nil when the user never
// connected the provider.
func (r *CredentialRepository) Get(ctx context.Context, userID string, p domain.Provider) (*domain.Credential, error) {
	const query = `SELECT user_id, provider, access_token, refresh_token, token_expiry, status, updated_at
        FROM calendar_credentials WHERE user_id=$1 AND provider=$2`

	row := r.pool.QueryRow(ctx, query, userID, string(p))

	var cred domain.Credential
	var providerName, status string
	err := row.Scan(&cred.UserID, &providerName, &cred.AccessToken, &cred.RefreshToken, &cred.Expiry, &status, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cred.Provider = domain.Provider(providerName)
	cred.Status = domain.CredentialStatus(status)
	return &cred, nil
}

// Set upserts the credential record in place.
func (r *CredentialRepository) Set(ctx context.Context, cred domain.Credential) error {
	const stmt = `INSERT INTO calendar_credentials (user_id, provider, access_token, refresh_token, token_expiry, status, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        ON CONFLICT (user_id, provider) DO UPDATE SET
            access_token=EXCLUDED.access_token,
            refresh_token=EXCLUDED.refresh_token,
            token_expiry=EXCLUDED.token_expiry,
            status=EXCLUDED.status,
            updated_at=NOW()`

	_, err := r.pool.Exec(ctx, stmt,
		cred.UserID,
		string(cred.Provider),
		cred.AccessToken,
		cred.RefreshToken,
		cred.Expiry,
		string(cred.Status),
	)
	return err
}

// ListConnected returns the (user, provider) pairs with a valid
// credential, in deterministic order. Records marked reauth_required
// are excluded; background passes would only burn refresh attempts on
// them.
func (r *CredentialRepository) ListConnected(ctx context.Context) ([]domain.Connection, error) {
	const query = `SELECT user_id, provider FROM calendar_credentials
        WHERE status='valid' ORDER BY user_id, provider`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var conn domain.Connection
		var providerName string
		if err := rows.Scan(&conn.UserID, &providerName); err != nil {
			return nil, err
		}
		conn.Provider = domain.Provider(providerName)
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// Delete removes the record; used by explicit disconnect only.
func (r *CredentialRepository) Delete(ctx context.Context, userID string, p domain.Provider) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM calendar_credentials WHERE user_id=$1 AND provider=$2`, userID, string(p))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
