package postgres

import (
	"context"
	"database/sql"
	"time"

	"buildwatch/internal/api"
	"buildwatch/internal/domain"
	"buildwatch/internal/fanout"
	"buildwatch/internal/tracker"
)

// Store implements tracker.Store, fanout.Store and api.Store using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a new PostgreSQL store with the given database connection.
// Every operation runs under opTimeout so a stalled database cannot wedge
// the reconciliation loop.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, querySchema)
	return err
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// UpsertTrackedJob records a tracked build for a user, creating the user row
// on first contact. The insert is idempotent: re-tracking the same
// (user, list, job, build) is a no-op unless the row is still running, and a
// row that already reached a terminal status is never reverted.
func (s *Store) UpsertTrackedJob(ctx context.Context, job domain.TrackedJob) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryUpsertUser, job.Username); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, queryUpsertTrackedJob,
		job.Username,
		string(job.ListType),
		job.JobName,
		job.BuildNumber,
		string(job.Status),
		job.Subject,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListRunningJobs returns every still-running tracked entry in one list,
// across all users. The result is a point-in-time snapshot.
func (s *Store) ListRunningJobs(ctx context.Context, listType domain.ListType) ([]domain.TrackedRef, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListRunningJobs, string(listType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TrackedRef
	for rows.Next() {
		var ref domain.TrackedRef
		if err := rows.Scan(&ref.Username, &ref.JobName, &ref.BuildNumber); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListUserRunningJobs returns a user's still-running tracked builds from both lists.
func (s *Store) ListUserRunningJobs(ctx context.Context, username string) ([]domain.TrackedJob, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListUserRunningJobs, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TrackedJob
	for rows.Next() {
		var tj domain.TrackedJob
		var listType, status string

		err := rows.Scan(
			&tj.Username,
			&listType,
			&tj.JobName,
			&tj.BuildNumber,
			&status,
			&tj.Subject,
			&tj.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		tj.ListType = domain.ListType(listType)
		tj.Status = domain.BuildStatus(status)
		result = append(result, tj)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// SetTerminalStatus moves every still-running row for (job, build) to the
// given terminal status, across all users and both lists. Rows already in a
// terminal status are left untouched, so the transition fires at most once
// per row under concurrent callers. Returns the number of rows transitioned.
func (s *Store) SetTerminalStatus(ctx context.Context, jobName, buildNumber string, status domain.BuildStatus, subject string, at time.Time) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, querySetTerminalStatus, jobName, buildNumber, string(status), subject, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UsersTracking returns every user with a tracked row for (job, build) in
// either list. A user present in both lists is reported once, as triggered.
func (s *Store) UsersTracking(ctx context.Context, jobName, buildNumber string) ([]domain.UserRef, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryUsersTracking, jobName, buildNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.UserRef
	for rows.Next() {
		var ref domain.UserRef
		var triggered bool
		if err := rows.Scan(&ref.Username, &triggered); err != nil {
			return nil, err
		}
		if triggered {
			ref.Type = domain.ListTriggered
		} else {
			ref.Type = domain.ListInquired
		}
		result = append(result, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// AppendNotification inserts a notification into the user's feed.
// Returns false if an identical (user, job, build, status) notification
// already exists; the unique index makes the append exactly-once even when
// the background loop and a foreground check race.
func (s *Store) AppendNotification(ctx context.Context, n domain.Notification) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryAppendNotification,
		n.ID,
		n.Username,
		n.JobName,
		n.BuildNumber,
		string(n.Status),
		string(n.Type),
		n.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// ListUnread returns the user's unread notifications, newest first.
func (s *Store) ListUnread(ctx context.Context, username string) ([]domain.Notification, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListUnread, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var status, ntype string

		err := rows.Scan(
			&n.ID,
			&n.Username,
			&n.JobName,
			&n.BuildNumber,
			&status,
			&ntype,
			&n.CreatedAt,
			&n.Read,
		)
		if err != nil {
			return nil, err
		}
		n.Status = domain.BuildStatus(status)
		n.Type = domain.ListType(ntype)
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// MarkRead marks a user's notifications for one build as read.
// Returns sql.ErrNoRows when the user has no unread notification for that build.
func (s *Store) MarkRead(ctx context.Context, username, jobName, buildNumber string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryMarkRead, username, jobName, buildNumber)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead marks all of a user's unread notifications as read and returns
// how many were affected.
func (s *Store) MarkAllRead(ctx context.Context, username string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryMarkAllRead, username)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SetNotificationsEnabled flips a user's notification switch, creating the
// user row if needed.
func (s *Store) SetNotificationsEnabled(ctx context.Context, username string, enabled bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, querySetNotificationsEnabled, username, enabled)
	return err
}

// NotificationsEnabled reports whether a user wants foreground notifications.
// Unknown users default to enabled.
func (s *Store) NotificationsEnabled(ctx context.Context, username string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var enabled bool
	err := s.db.QueryRowContext(ctx, queryNotificationsEnabled, username).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// Compile-time interface assertions
var (
	_ tracker.Store = (*Store)(nil)
	_ fanout.Store  = (*Store)(nil)
	_ api.Store     = (*Store)(nil)
)
