package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/vigil/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Upsert creates or reconfigures a user keyed by device_id. The heartbeat
// is reset to now on every (re)registration so a config update never
// triggers an immediate alert. An omitted user name or contact keeps the
// stored value. The alerting flag is deliberately left intact: a user who
// re-registers while alerting becomes fresh, and the next sweep's recovery
// branch owns sending the resolved email before clearing the flag.
func (r *PostgresUserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (device_id, user_name, timeout_hours, last_heartbeat, encrypted_contact)
	          VALUES ($1, $2, $3, NOW(), $4)
	          ON CONFLICT (device_id) DO UPDATE SET
	              user_name         = COALESCE(NULLIF(EXCLUDED.user_name, ''), users.user_name),
	              timeout_hours     = EXCLUDED.timeout_hours,
	              last_heartbeat    = NOW(),
	              encrypted_contact = COALESCE(EXCLUDED.encrypted_contact, users.encrypted_contact),
	              updated_at        = NOW()
	          RETURNING user_name, last_heartbeat, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.DeviceID,
		user.UserName,
		user.TimeoutHours,
		user.EncryptedContact,
	).Scan(&user.UserName, &user.LastHeartbeat, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.User, error) {
	query := `SELECT device_id, user_name, timeout_hours, last_heartbeat,
	                 is_alerting, last_alert_time, encrypted_contact, created_at, updated_at
	          FROM users
	          WHERE device_id = $1`

	var user models.User
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&user.DeviceID,
		&user.UserName,
		&user.TimeoutHours,
		&user.LastHeartbeat,
		&user.IsAlerting,
		&user.LastAlertTime,
		&user.EncryptedContact,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT device_id, user_name, timeout_hours, last_heartbeat,
	                 is_alerting, last_alert_time, encrypted_contact, created_at, updated_at
	          FROM users
	          ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.DeviceID,
			&user.UserName,
			&user.TimeoutHours,
			&user.LastHeartbeat,
			&user.IsAlerting,
			&user.LastAlertTime,
			&user.EncryptedContact,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// RecordHeartbeat stamps the heartbeat and clears the alerting flag in a
// single row-level atomic write. The row is locked so the returned prior
// flag cannot interleave with a concurrent sweep write.
func (r *PostgresUserRepository) RecordHeartbeat(ctx context.Context, deviceID string, now time.Time) (bool, time.Time, error) {
	query := `UPDATE users u
	          SET last_heartbeat = $2, is_alerting = FALSE, updated_at = NOW()
	          FROM (SELECT device_id, is_alerting FROM users WHERE device_id = $1 FOR UPDATE) prev
	          WHERE u.device_id = prev.device_id
	          RETURNING prev.is_alerting, u.last_heartbeat`

	var wasAlerting bool
	var lastHeartbeat time.Time
	err := r.pool.QueryRow(ctx, query, deviceID, now).Scan(&wasAlerting, &lastHeartbeat)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, time.Time{}, ErrNotFound
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return wasAlerting, lastHeartbeat, nil
}

// MarkAlerting commits the Live -> Alerting transition. The WHERE clause
// re-checks the heartbeat value the sweep based its decision on, so a
// heartbeat that landed mid-sweep makes this a no-op instead of storing
// is_alerting=true over fresh liveness.
func (r *PostgresUserRepository) MarkAlerting(ctx context.Context, deviceID string, evaluatedHeartbeat time.Time, now time.Time) (bool, error) {
	query := `UPDATE users
	          SET is_alerting = TRUE, last_alert_time = $3, updated_at = NOW()
	          WHERE device_id = $1 AND is_alerting = FALSE AND last_heartbeat = $2`

	result, err := r.pool.Exec(ctx, query, deviceID, evaluatedHeartbeat, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark alerting: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *PostgresUserRepository) ClearAlerting(ctx context.Context, deviceID string) (bool, error) {
	query := `UPDATE users
	          SET is_alerting = FALSE, updated_at = NOW()
	          WHERE device_id = $1 AND is_alerting = TRUE`

	result, err := r.pool.Exec(ctx, query, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to clear alerting: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
