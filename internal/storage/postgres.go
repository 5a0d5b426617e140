package storage

import (
	"database/sql"

	_ "github.com/lib/pq"
)

var DB *sql.DB

// InitPostgres 打开连接并 ping 一次，确认 DSN 可用再继续启动。
func InitPostgres(dsn string) error {
	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	return DB.Ping()
}
