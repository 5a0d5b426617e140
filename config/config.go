package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string
	}
	// Database 和 Redis 二选一作为账号存储；都不配置时退化为内存存储（仅测试/单机）
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
	}
}

var C Config

func Load() {
	viper.SetConfigFile("config/config.yaml")
	viper.SetDefault("server.port", ":3000")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	if err := viper.Unmarshal(&C); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}
}
