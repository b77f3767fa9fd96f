package sqlite

// schema contains the database schema DDL.
const schema = `
-- Signed-in session, at most one
CREATE TABLE IF NOT EXISTS session (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    token TEXT NOT NULL,
    user_json TEXT NOT NULL,
    saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Last merged reading set per owner
CREATE TABLE IF NOT EXISTS reading_cache (
    owner TEXT PRIMARY KEY,
    readings TEXT NOT NULL,
    saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
