package account

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"
)

type postgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo 建表（若不存在）并返回仓库。
func NewPostgresRepo(db *sql.DB) (Repo, error) {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	nickname      TEXT NOT NULL,
	wins          INT  NOT NULL DEFAULT 0,
	games_played  INT  NOT NULL DEFAULT 0
)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, err
	}
	return &postgresRepo{db: db}, nil
}

func (r *postgresRepo) Create(ctx context.Context, a Account) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, nickname, wins, games_played)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO NOTHING`,
		a.Username, a.PasswordHash, a.Nickname, a.Stats.Wins, a.Stats.GamesPlayed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, username string) (Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx,
		`SELECT username, password_hash, nickname, wins, games_played
		 FROM accounts WHERE username = $1`, username).
		Scan(&a.Username, &a.PasswordHash, &a.Nickname, &a.Stats.Wins, &a.Stats.GamesPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *postgresRepo) RecordResult(ctx context.Context, username string, won bool) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx,
		`UPDATE accounts
		 SET games_played = games_played + 1,
		     wins = wins + CASE WHEN $2 THEN 1 ELSE 0 END
		 WHERE username = $1
		 RETURNING wins, games_played`, username, won).
		Scan(&s.Wins, &s.GamesPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, ErrNotFound
	}
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (r *postgresRepo) All(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT username, password_hash, nickname, wins, games_played
		 FROM accounts ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Username, &a.PasswordHash, &a.Nickname, &a.Stats.Wins, &a.Stats.GamesPlayed); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
