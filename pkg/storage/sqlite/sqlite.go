// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Driver implements storage.Driver on a SQLite database.
type Driver struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver opens (creating when needed) the database at dbPath and applies
// the schema. dbPath can be a file path or ":memory:".
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes
	// writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

type scanner interface {
	Scan(dest ...any) error
}

func (d *Driver) UpsertUser(ctx context.Context, user *network.User) error {
	if user == nil {
		return errors.New("cannot store nil user")
	}
	if user.ID == "" {
		return storage.ErrMissingID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = d.now()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, name, avatar, access_token, refresh_token, token_expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry`,
		user.ID, user.Name, user.Avatar, user.AccessToken, user.RefreshToken,
		formatTime(user.TokenExpiry), formatTime(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", user.ID, err)
	}

	var created string
	if err := d.db.QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, user.ID).Scan(&created); err != nil {
		return fmt.Errorf("reading user %s: %w", user.ID, err)
	}
	user.CreatedAt, err = parseTime(created)
	return err
}

const userColumns = `id, name, avatar, access_token, refresh_token, token_expiry, created_at`

func scanUser(row scanner) (*network.User, error) {
	var (
		u               network.User
		expiry, created string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Avatar, &u.AccessToken, &u.RefreshToken, &expiry, &created); err != nil {
		return nil, err
	}

	var err error
	if u.TokenExpiry, err = parseTime(expiry); err != nil {
		return nil, fmt.Errorf("parsing token expiry: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &u, nil
}

func (d *Driver) GetUser(ctx context.Context, id string) (*network.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindUser, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}

func (d *Driver) ListPeers(ctx context.Context, excludeID string, limit int) ([]*network.User, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id <> ?
		ORDER BY created_at, id
		LIMIT ?`, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing peers: %w", err)
	}
	defer rows.Close()

	var peers []*network.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning peer: %w", err)
		}
		peers = append(peers, u)
	}
	return peers, rows.Err()
}

func (d *Driver) UpdateUserTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users SET access_token = ?, refresh_token = ?, token_expiry = ?
		WHERE id = ?`, accessToken, refreshToken, formatTime(expiry), userID)
	if err != nil {
		return fmt.Errorf("updating tokens for %s: %w", userID, err)
	}
	return mustAffect(res, storage.KindUser, userID)
}

func (d *Driver) ListMembers(ctx context.Context) ([]network.Member, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.avatar, u.created_at,
			(SELECT COUNT(*) FROM requests r WHERE r.user_id = u.id),
			(SELECT COUNT(*) FROM conversations c WHERE c.peer_id = u.id)
		FROM users u
		ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []network.Member
	for rows.Next() {
		var (
			m       network.Member
			created string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Avatar, &created, &m.RequestCount, &m.ConversationCount); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (d *Driver) CreateRequest(ctx context.Context, req *network.Request) error {
	if req == nil {
		return errors.New("cannot store nil request")
	}
	storage.PrepareRequest(req, d.now())

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO requests (id, user_id, content, status, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.Content, string(req.Status), req.Summary,
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return nil
}

func (d *Driver) GetRequest(ctx context.Context, id string) (*network.Request, error) {
	var (
		r                network.Request
		status           string
		created, updated string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, status, summary, created_at, updated_at
		FROM requests WHERE id = ?`, id).
		Scan(&r.ID, &r.UserID, &r.Content, &status, &r.Summary, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindRequest, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting request %s: %w", id, err)
	}

	r.Status = network.RequestStatus(status)
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Driver) ListRequests(ctx context.Context, userID string) ([]storage.RequestListing, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.content, r.status, r.summary, r.created_at, r.updated_at,
			COALESCE(u.name, ''), COALESCE(u.avatar, ''),
			(SELECT COUNT(*) FROM conversations c WHERE c.request_id = r.id),
			(SELECT COUNT(*) FROM conversations c WHERE c.request_id = r.id AND c.status IN (?, ?))
		FROM requests r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE ? = '' OR r.user_id = ?
		ORDER BY r.created_at DESC, r.id`,
		string(network.StatusConcluded), string(network.StatusCompleted), userID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var listings []storage.RequestListing
	for rows.Next() {
		var (
			l                storage.RequestListing
			status, name     string
			created, updated string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Content, &status, &l.Summary, &created, &updated,
			&name, &l.RequesterAvatar, &l.ConversationCount, &l.SettledCount); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		l.Status = network.RequestStatus(status)
		l.RequesterName = storage.PeerName(name)
		if l.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if l.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (d *Driver) UpdateRequestStatus(ctx context.Context, id string, status network.RequestStatus) error {
	res, err := d.db.ExecContext(ctx, `UPDATE requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(d.now()), id)
	if err != nil {
		return fmt.Errorf("updating request %s status: %w", id, err)
	}
	return mustAffect(res, storage.KindRequest, id)
}

func (d *Driver) SetRequestSummary(ctx context.Context, id, summary string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE requests SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		summary, string(network.RequestCompleted), formatTime(d.now()), id)
	if err != nil {
		return fmt.Errorf("setting request %s summary: %w", id, err)
	}
	return mustAffect(res, storage.KindRequest, id)
}

func (d *Driver) CreateConversation(ctx context.Context, conv *network.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}
	storage.PrepareConversation(conv, d.now())

	transcript, err := storage.EncodeTranscript(conv.Transcript)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO conversations (id, request_id, peer_id, transcript, requester_token, peer_token,
			status, reason, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.RequestID, conv.PeerID, string(transcript),
		string(conv.RequesterToken), string(conv.PeerToken),
		string(conv.Status), conv.Reason, conv.Summary,
		formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

const conversationColumns = `c.id, c.request_id, c.peer_id, c.transcript, c.requester_token, c.peer_token,
	c.status, c.reason, c.summary, c.created_at, c.updated_at`

func scanConversation(row scanner, extra ...any) (*network.Conversation, error) {
	var (
		c                         network.Conversation
		transcript                string
		requesterToken, peerToken string
		status                    string
		created, updated          string
	)
	dest := []any{&c.ID, &c.RequestID, &c.PeerID, &transcript, &requesterToken, &peerToken,
		&status, &c.Reason, &c.Summary, &created, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var err error
	if c.Transcript, err = storage.DecodeTranscript([]byte(transcript)); err != nil {
		return nil, err
	}
	c.RequesterToken = network.RequesterToken(requesterToken)
	c.PeerToken = network.PeerToken(peerToken)
	c.Status = network.Status(status)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *Driver) GetConversation(ctx context.Context, id string) (*network.Conversation, error) {
	c, err := scanConversation(d.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return c, nil
}

func (d *Driver) UpdateConversation(ctx context.Context, conv *network.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}

	transcript, err := storage.EncodeTranscript(conv.Transcript)
	if err != nil {
		return err
	}

	conv.UpdatedAt = d.now()
	res, err := d.db.ExecContext(ctx, `
		UPDATE conversations SET transcript = ?, requester_token = ?, peer_token = ?,
			status = ?, reason = ?, summary = ?, updated_at = ?
		WHERE id = ?`,
		string(transcript), string(conv.RequesterToken), string(conv.PeerToken),
		string(conv.Status), conv.Reason, conv.Summary, formatTime(conv.UpdatedAt), conv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", conv.ID, err)
	}
	return mustAffect(res, storage.KindConversation, conv.ID)
}

func (d *Driver) GetConversationsByRequest(ctx context.Context, requestID string) ([]*network.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.request_id = ?
		ORDER BY c.created_at, c.id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*network.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *Driver) GetRequestWithConversations(ctx context.Context, requestID string) (*storage.RequestDetail, error) {
	req, err := d.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`, COALESCE(u.name, ''), COALESCE(u.avatar, '')
		FROM conversations c
		LEFT JOIN users u ON u.id = c.peer_id
		WHERE c.request_id = ?
		ORDER BY c.created_at, c.id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	detail := &storage.RequestDetail{Request: *req}
	for rows.Next() {
		var name, avatar string
		c, err := scanConversation(rows, &name, &avatar)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		detail.Conversations = append(detail.Conversations, storage.ConversationDetail{
			Conversation: *c,
			PeerName:     storage.PeerName(name),
			PeerAvatar:   avatar,
		})
	}
	return detail, rows.Err()
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
