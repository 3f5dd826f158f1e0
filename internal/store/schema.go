package store

const schema = `
CREATE TABLE IF NOT EXISTS operations (
    id TEXT PRIMARY KEY,
    tag TEXT NOT NULL,
    kind TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    message TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS launches (
    id TEXT PRIMARY KEY,
    prefix TEXT NOT NULL,
    exe TEXT NOT NULL,
    runtime TEXT,
    launched_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_tag ON operations(tag);
CREATE INDEX IF NOT EXISTS idx_operations_finished ON operations(finished_at);
CREATE INDEX IF NOT EXISTS idx_launches_exe ON launches(prefix, exe);
CREATE INDEX IF NOT EXISTS idx_launches_time ON launches(launched_at);
`
