package main

import (
	"database/sql"
	"errors"
	"sync"
	"time"
)

// DB interface for database operations
type DB interface {
	Init() error
	// User operations
	CreateUser(email, passwordHash string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id int64) (*User, error)
	// Refresh token operations
	InsertRefreshToken(t *RefreshToken) error
	GetRefreshTokenByUser(userID int64) (*RefreshToken, error)
	GetRefreshToken(token, kind string) (*RefreshToken, error)
	DeleteRefreshToken(token string) error
	DeleteExpiredRefreshTokens(now time.Time) (int64, error)
}

// Memory DB
type MemDB struct {
	mu     sync.Mutex
	users  map[string]*User
	tokens map[string]*RefreshToken
	seq    int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{users: map[string]*User{}, tokens: map[string]*RefreshToken{}, seq: 1}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, errors.New("exists")
	}
	u := &User{ID: m.seq, Email: email, Password: passwordHash, Option: "Week", ShowCompleted: true, CreatedAt: time.Now()}
	m.seq++
	m.users[email] = u
	return u, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MemDB) InsertRefreshToken(t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

// GetRefreshTokenByUser returns the record with the latest expiry for
// the user, so a dead record awaiting the reaper never shadows a live
// one.
func (m *MemDB) GetRefreshTokenByUser(userID int64) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *RefreshToken
	for _, t := range m.tokens {
		if t.UserID != userID {
			continue
		}
		if latest == nil || t.ExpiresAt.After(latest.ExpiresAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MemDB) GetRefreshToken(token, kind string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[token]; ok && t.Kind == kind {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) DeleteRefreshToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *MemDB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if t.ExpiresAt.Before(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT UNIQUE, password TEXT, canvas_token TEXT DEFAULT '', option TEXT DEFAULT 'Week', show_completed INTEGER DEFAULT 1, created_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (id TEXT PRIMARY KEY, user_id INTEGER, token TEXT, kind TEXT, expires_at INTEGER, created_at INTEGER);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_token ON refresh_tokens(token);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) CreateUser(email, passwordHash string) (*User, error) {
	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO users(email,password,canvas_token,option,show_completed,created_at) VALUES(?,?,'','Week',1,?)`, email, passwordHash, now.Unix())
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Email: email, Password: passwordHash, Option: "Week", ShowCompleted: true, CreatedAt: now}, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,email,password,canvas_token,option,show_completed,created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,email,password,canvas_token,option,show_completed,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var showCompleted int
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.CanvasToken, &u.Option, &showCompleted, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.ShowCompleted = showCompleted != 0
	u.CreatedAt = time.Unix(created, 0)
	return &u, nil
}

func (s *SQLiteDB) InsertRefreshToken(t *RefreshToken) error {
	_, err := s.db.Exec(`INSERT INTO refresh_tokens(id,user_id,token,kind,expires_at,created_at) VALUES(?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Token, t.Kind, t.ExpiresAt.Unix(), t.CreatedAt.Unix())
	return err
}

func (s *SQLiteDB) GetRefreshTokenByUser(userID int64) (*RefreshToken, error) {
	return s.scanToken(s.db.QueryRow(`SELECT id,user_id,token,kind,expires_at,created_at FROM refresh_tokens WHERE user_id = ? ORDER BY expires_at DESC LIMIT 1`, userID))
}

func (s *SQLiteDB) GetRefreshToken(token, kind string) (*RefreshToken, error) {
	return s.scanToken(s.db.QueryRow(`SELECT id,user_id,token,kind,expires_at,created_at FROM refresh_tokens WHERE token = ? AND kind = ?`, token, kind))
}

func (s *SQLiteDB) scanToken(row *sql.Row) (*RefreshToken, error) {
	var t RefreshToken
	var expires, created int64
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.Kind, &expires, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.ExpiresAt = time.Unix(expires, 0)
	t.CreatedAt = time.Unix(created, 0)
	return &t, nil
}

func (s *SQLiteDB) DeleteRefreshToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE token = ?`, token)
	return err
}

func (s *SQLiteDB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
