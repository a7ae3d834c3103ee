package postgres

const querySchema = `
CREATE TABLE IF NOT EXISTS tracker_users (
    username               TEXT PRIMARY KEY,
    notifications_enabled  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS tracked_jobs (
    username      TEXT NOT NULL REFERENCES tracker_users (username),
    list_type     TEXT NOT NULL,
    job_name      TEXT NOT NULL,
    build_number  TEXT NOT NULL,
    status        TEXT NOT NULL,
    subject       TEXT NOT NULL DEFAULT '',
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (username, list_type, job_name, build_number)
);

CREATE INDEX IF NOT EXISTS tracked_jobs_running_idx
    ON tracked_jobs (job_name, build_number) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS notifications (
    id            UUID PRIMARY KEY,
    username      TEXT NOT NULL,
    job_name      TEXT NOT NULL,
    build_number  TEXT NOT NULL,
    status        TEXT NOT NULL,
    type          TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    read          BOOLEAN NOT NULL DEFAULT FALSE,
    CONSTRAINT notifications_delivery_key UNIQUE (username, job_name, build_number, status)
);

CREATE INDEX IF NOT EXISTS notifications_unread_idx
    ON notifications (username, created_at DESC) WHERE read = FALSE;
`

const queryUpsertUser = `
INSERT INTO tracker_users (username)
VALUES ($1)
ON CONFLICT (username) DO NOTHING
`

const queryUpsertTrackedJob = `
INSERT INTO tracked_jobs (username, list_type, job_name, build_number, status, subject, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (username, list_type, job_name, build_number)
DO UPDATE SET status = EXCLUDED.status, subject = EXCLUDED.subject, updated_at = EXCLUDED.updated_at
WHERE tracked_jobs.status = 'running'
`

const queryListRunningJobs = `
SELECT username, job_name, build_number
FROM tracked_jobs
WHERE list_type = $1
  AND status = 'running'
ORDER BY job_name, build_number, username
`

const queryListUserRunningJobs = `
SELECT username, list_type, job_name, build_number, status, subject, updated_at
FROM tracked_jobs
WHERE username = $1
  AND status = 'running'
ORDER BY job_name, build_number
`

const querySetTerminalStatus = `
UPDATE tracked_jobs
SET status = $3, subject = $4, updated_at = $5
WHERE job_name = $1
  AND build_number = $2
  AND status = 'running'
`

const queryUsersTracking = `
SELECT username, bool_or(list_type = 'triggered')
FROM tracked_jobs
WHERE job_name = $1
  AND build_number = $2
GROUP BY username
ORDER BY username
`

const queryAppendNotification = `
INSERT INTO notifications (id, username, job_name, build_number, status, type, created_at, read)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
ON CONFLICT (username, job_name, build_number, status) DO NOTHING
`

const queryListUnread = `
SELECT id, username, job_name, build_number, status, type, created_at, read
FROM notifications
WHERE username = $1
  AND read = FALSE
ORDER BY created_at DESC, id
`

const queryMarkRead = `
UPDATE notifications
SET read = TRUE
WHERE username = $1
  AND job_name = $2
  AND build_number = $3
  AND read = FALSE
`

const queryMarkAllRead = `
UPDATE notifications
SET read = TRUE
WHERE username = $1
  AND read = FALSE
`

const querySetNotificationsEnabled = `
INSERT INTO tracker_users (username, notifications_enabled)
VALUES ($1, $2)
ON CONFLICT (username)
DO UPDATE SET notifications_enabled = EXCLUDED.notifications_enabled
`

const queryNotificationsEnabled = `
SELECT notifications_enabled FROM tracker_users WHERE username = $1
`
