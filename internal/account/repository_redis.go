package account

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// key 约定：
//
//	hash: acct:{username}  -> username / nickname / password / wins / gamesPlayed
//	set : acct:index       -> Set(username,...)（排行榜遍历用）
func acctKey(username string) string {
	return fmt.Sprintf("acct:%s", username)
}

const indexKey = "acct:index"

func (r *redisRepo) Create(ctx context.Context, a Account) error {
	// SADD 返回 0 说明用户名已被占用（原子判重）
	added, err := r.rdb.SAdd(ctx, indexKey, a.Username).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrExists
	}
	return r.rdb.HSet(ctx, acctKey(a.Username),
		"username", a.Username,
		"nickname", a.Nickname,
		"password", a.PasswordHash,
		"wins", a.Stats.Wins,
		"gamesPlayed", a.Stats.GamesPlayed,
	).Err()
}

func (r *redisRepo) Get(ctx context.Context, username string) (Account, error) {
	fields, err := r.rdb.HGetAll(ctx, acctKey(username)).Result()
	if err != nil {
		return Account{}, err
	}
	if len(fields) == 0 {
		return Account{}, ErrNotFound
	}
	return accountFromHash(fields), nil
}

func (r *redisRepo) RecordResult(ctx context.Context, username string, won bool) (Stats, error) {
	key := acctKey(username)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return Stats{}, err
	}
	if exists == 0 {
		return Stats{}, ErrNotFound
	}

	p := r.rdb.Pipeline()
	games := p.HIncrBy(ctx, key, "gamesPlayed", 1)
	var wins *redis.IntCmd
	if won {
		wins = p.HIncrBy(ctx, key, "wins", 1)
	} else {
		wins = p.HIncrBy(ctx, key, "wins", 0)
	}
	if _, err := p.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Wins:        int(wins.Val()),
		GamesPlayed: int(games.Val()),
	}, nil
}

func (r *redisRepo) All(ctx context.Context) ([]Account, error) {
	usernames, err := r.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(usernames))
	for _, u := range usernames {
		fields, err := r.rdb.HGetAll(ctx, acctKey(u)).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue // index 与 hash 不同步时跳过
		}
		out = append(out, accountFromHash(fields))
	}
	return out, nil
}

func accountFromHash(fields map[string]string) Account {
	wins, _ := strconv.Atoi(fields["wins"])
	games, _ := strconv.Atoi(fields["gamesPlayed"])
	return Account{
		Username:     fields["username"],
		Nickname:     fields["nickname"],
		PasswordHash: fields["password"],
		Stats:        Stats{Wins: wins, GamesPlayed: games},
	}
}
