package main

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func (p *PostgresDB) CreateUser(email, passwordHash string) (*User, error) {
	var id int64
	var created time.Time
	err := p.db.QueryRow(`INSERT INTO users(email,password) VALUES($1,$2) RETURNING id, created_at`, email, passwordHash).Scan(&id, &created)
	if err != nil {
		// unique violation
		return nil, err
	}
	return &User{ID: id, Email: email, Password: passwordHash, Option: "Week", ShowCompleted: true, CreatedAt: created}, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,email,password,canvas_token,option,show_completed,created_at FROM users WHERE email = $1`, email))
}

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,email,password,canvas_token,option,show_completed,created_at FROM users WHERE id = $1`, id))
}

func (p *PostgresDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.CanvasToken, &u.Option, &u.ShowCompleted, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) InsertRefreshToken(t *RefreshToken) error {
	_, err := p.db.Exec(`INSERT INTO refresh_tokens(id,user_id,token,kind,expires_at,created_at) VALUES($1,$2,$3,$4,$5,$6)`,
		t.ID, t.UserID, t.Token, t.Kind, t.ExpiresAt, t.CreatedAt)
	return err
}

func (p *PostgresDB) GetRefreshTokenByUser(userID int64) (*RefreshToken, error) {
	return p.scanToken(p.db.QueryRow(`SELECT id,user_id,token,kind,expires_at,created_at FROM refresh_tokens WHERE user_id = $1 ORDER BY expires_at DESC LIMIT 1`, userID))
}

func (p *PostgresDB) GetRefreshToken(token, kind string) (*RefreshToken, error) {
	return p.scanToken(p.db.QueryRow(`SELECT id,user_id,token,kind,expires_at,created_at FROM refresh_tokens WHERE token = $1 AND kind = $2`, token, kind))
}

func (p *PostgresDB) scanToken(row *sql.Row) (*RefreshToken, error) {
	var t RefreshToken
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.Kind, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (p *PostgresDB) DeleteRefreshToken(token string) error {
	_, err := p.db.Exec(`DELETE FROM refresh_tokens WHERE token = $1`, token)
	return err
}

func (p *PostgresDB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	res, err := p.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
