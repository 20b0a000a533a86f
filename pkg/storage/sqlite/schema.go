package sqlite

// Times are stored as fixed-width UTC text so they sort lexically.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	avatar        TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expiry  TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS requests (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	content    TEXT NOT NULL,
	status     TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS requests_user_id ON requests (user_id);

CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	request_id      TEXT NOT NULL REFERENCES requests (id),
	peer_id         TEXT NOT NULL,
	transcript      TEXT NOT NULL DEFAULT '[]',
	requester_token TEXT NOT NULL DEFAULT '',
	peer_token      TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS conversations_request_id ON conversations (request_id);
CREATE INDEX IF NOT EXISTS conversations_peer_id ON conversations (peer_id);
`
