package database

const schema = `
CREATE TABLE IF NOT EXISTS config (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    keyname TEXT NOT NULL UNIQUE,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    contact_addr TEXT NOT NULL DEFAULT '',
    special INTEGER NOT NULL DEFAULT 0,
    ephemeral_timer INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS msgs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL DEFAULT 0,
    rfc724_mid TEXT NOT NULL DEFAULT '',
    server_folder TEXT NOT NULL DEFAULT '',
    server_uid INTEGER NOT NULL DEFAULT 0,
    from_addr TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    txt TEXT NOT NULL DEFAULT '',
    state INTEGER NOT NULL DEFAULT 0,
    timestamp INTEGER NOT NULL DEFAULT 0,
    ephemeral_timer INTEGER NOT NULL DEFAULT 0,
    ephemeral_timestamp INTEGER NOT NULL DEFAULT 0,
    param INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    added_timestamp INTEGER NOT NULL DEFAULT 0,
    thread INTEGER NOT NULL DEFAULT 0,
    action INTEGER NOT NULL DEFAULT 0,
    foreign_id INTEGER NOT NULL DEFAULT 0,
    param TEXT NOT NULL DEFAULT '',
    desired_timestamp INTEGER NOT NULL DEFAULT 0,
    tries INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_msgs_chat ON msgs(chat_id);
CREATE INDEX IF NOT EXISTS idx_msgs_rfc724 ON msgs(rfc724_mid);
CREATE INDEX IF NOT EXISTS idx_msgs_ephemeral ON msgs(ephemeral_timestamp);
CREATE INDEX IF NOT EXISTS idx_jobs_thread ON jobs(thread, desired_timestamp);

-- Reserve chat IDs below 10 for special chats; real chats start at 10.
INSERT INTO chats (id, name) SELECT 9, 'reserved'
    WHERE NOT EXISTS (SELECT 1 FROM chats WHERE id = 9);
`
