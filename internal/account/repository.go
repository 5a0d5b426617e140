package account

import (
	"context"
	"errors"
)

var (
	ErrExists   = errors.New("account already exists")
	ErrNotFound = errors.New("account not found")
)

// Repo 定义对账号存储的抽象操作。Redis / Postgres / 内存三种实现，
// 按配置选用；内存版仅供测试和单机试玩。
type Repo interface {
	// Create 注册新账号，用户名已存在时返回 ErrExists
	Create(ctx context.Context, a Account) error
	// Get 按用户名取账号，不存在时返回 ErrNotFound
	Get(ctx context.Context, username string) (Account, error)
	// RecordResult 终局落账：局数 +1，胜者胜场 +1，返回最新战绩
	RecordResult(ctx context.Context, username string, won bool) (Stats, error)
	// All 返回全部账号（排行榜用）
	All(ctx context.Context) ([]Account, error)
}
