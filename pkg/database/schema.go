package database

// Schema is the embedded DDL for the catalog and its satellite tables.
//
// materials carries two partial unique indexes: one enforcing global
// content identity over live file rows, one enforcing at most a single
// active row per (week_id, type) slot. material_slot_seq is the version
// authority per slot; it only ever grows, so version numbers stay unique
// even after archived rows are hard-deleted.
const Schema = `
CREATE TABLE IF NOT EXISTS weeks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    week_no    INTEGER NOT NULL UNIQUE,
    topic      TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS materials (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    week_id      INTEGER NOT NULL REFERENCES weeks(id),
    type         TEXT NOT NULL CHECK (type IN ('prep','methodical','notes','slides','video_link')),
    version      INTEGER NOT NULL,
    locator      TEXT NOT NULL,
    content_hash TEXT,
    size_bytes   INTEGER,
    mime         TEXT,
    visibility   TEXT NOT NULL DEFAULT 'public' CHECK (visibility IN ('public','teacher_only')),
    uploaded_by  TEXT NOT NULL,
    created_at   INTEGER NOT NULL DEFAULT (strftime('%s','now')),
    is_active    INTEGER NOT NULL DEFAULT 0,
    deleted_at   INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_materials_content
    ON materials(content_hash, size_bytes)
    WHERE content_hash IS NOT NULL AND deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS ux_materials_active
    ON materials(week_id, type)
    WHERE is_active = 1 AND deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS ix_materials_slot ON materials(week_id, type);

CREATE TABLE IF NOT EXISTS material_slot_seq (
    week_id      INTEGER NOT NULL,
    type         TEXT NOT NULL,
    last_version INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (week_id, type)
);

CREATE TABLE IF NOT EXISTS submissions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    week_no    INTEGER NOT NULL,
    student_id TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'submitted',
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS ix_submissions_student_week ON submissions(student_id, week_no);

CREATE TABLE IF NOT EXISTS submission_files (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    submission_id INTEGER NOT NULL REFERENCES submissions(id),
    content_hash  TEXT NOT NULL,
    size_bytes    INTEGER NOT NULL,
    locator       TEXT NOT NULL,
    mime          TEXT,
    created_at    INTEGER NOT NULL DEFAULT (strftime('%s','now')),
    deleted_at    INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_submission_files_content
    ON submission_files(submission_id, content_hash, size_bytes)
    WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    request_id  TEXT,
    actor_id    TEXT NOT NULL,
    event       TEXT NOT NULL,
    object_type TEXT,
    object_id   INTEGER,
    meta        TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS system_backups (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    last_full_ts INTEGER NOT NULL DEFAULT 0,
    last_inc_ts  INTEGER NOT NULL DEFAULT 0,
    updated_at   INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO system_backups (id) VALUES (1);
`
