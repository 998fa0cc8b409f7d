// Package config 从环境变量（可选 .env 文件）读取服务配置
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trainarena/game"
	"trainarena/room"
)

// Config 服务运行参数
type Config struct {
	Host      string
	Port      int
	AdminAddr string // 为空时不启动管理接口

	TickRate       int
	BroadcastRate  int
	PlayersPerRoom int

	WaitingTimeBeforeBots time.Duration
	GameLifetime          time.Duration
	CloseGrace            time.Duration
	RespawnCooldown       time.Duration
	DeliveryCooldown      time.Duration
	ClientTimeout         time.Duration

	ScoresFile          string
	ScoresFlushInterval time.Duration

	LogFile    string
	LogLevel   string
	LogConsole bool
}

// Default 默认配置
func Default() Config {
	return Config{
		Host:                  "0.0.0.0",
		Port:                  5555,
		AdminAddr:             ":8080",
		TickRate:              60,
		BroadcastRate:         30,
		PlayersPerRoom:        2,
		WaitingTimeBeforeBots: 30 * time.Second,
		GameLifetime:          5 * time.Minute,
		CloseGrace:            2 * time.Second,
		RespawnCooldown:       5 * time.Second,
		DeliveryCooldown:      100 * time.Millisecond,
		ClientTimeout:         2 * time.Second,
		ScoresFile:            "player_scores.json",
		ScoresFlushInterval:   10 * time.Second,
		LogFile:               "server.log",
		LogLevel:              "debug",
		LogConsole:            true,
	}
}

// Load 先加载 envFile（不存在则跳过，不覆盖已有环境变量），再读取 TRAINS_* 变量
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	c := Default()
	e := env{lookup: os.LookupEnv}
	c.Host = e.string("TRAINS_HOST", c.Host)
	c.Port = e.int("TRAINS_PORT", c.Port)
	c.AdminAddr = e.string("TRAINS_ADMIN_ADDR", c.AdminAddr)
	c.TickRate = e.int("TRAINS_TICK_RATE", c.TickRate)
	c.BroadcastRate = e.int("TRAINS_BROADCAST_RATE", c.BroadcastRate)
	c.PlayersPerRoom = e.int("TRAINS_PLAYERS_PER_ROOM", c.PlayersPerRoom)
	c.WaitingTimeBeforeBots = e.duration("TRAINS_WAITING_TIME_BEFORE_BOTS", c.WaitingTimeBeforeBots)
	c.GameLifetime = e.duration("TRAINS_GAME_LIFETIME", c.GameLifetime)
	c.CloseGrace = e.duration("TRAINS_CLOSE_GRACE", c.CloseGrace)
	c.RespawnCooldown = e.duration("TRAINS_RESPAWN_COOLDOWN", c.RespawnCooldown)
	c.DeliveryCooldown = e.duration("TRAINS_DELIVERY_COOLDOWN", c.DeliveryCooldown)
	c.ClientTimeout = e.duration("TRAINS_CLIENT_TIMEOUT", c.ClientTimeout)
	c.ScoresFile = e.string("TRAINS_SCORES_FILE", c.ScoresFile)
	c.ScoresFlushInterval = e.duration("TRAINS_SCORES_FLUSH_INTERVAL", c.ScoresFlushInterval)
	c.LogFile = e.string("TRAINS_LOG_FILE", c.LogFile)
	c.LogLevel = e.string("TRAINS_LOG_LEVEL", c.LogLevel)
	c.LogConsole = e.bool("TRAINS_LOG_CONSOLE", c.LogConsole)
	if e.err != nil {
		return Config{}, e.err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate 检查取值范围
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("TRAINS_PORT: %d out of range", c.Port)
	case c.TickRate <= 0:
		return fmt.Errorf("TRAINS_TICK_RATE: must be positive, got %d", c.TickRate)
	case c.BroadcastRate <= 0 || c.BroadcastRate > c.TickRate:
		return fmt.Errorf("TRAINS_BROADCAST_RATE: must be in [1, %d], got %d", c.TickRate, c.BroadcastRate)
	case c.PlayersPerRoom <= 0:
		return fmt.Errorf("TRAINS_PLAYERS_PER_ROOM: must be positive, got %d", c.PlayersPerRoom)
	case c.GameLifetime <= 0:
		return fmt.Errorf("TRAINS_GAME_LIFETIME: must be positive, got %s", c.GameLifetime)
	case c.ClientTimeout <= 0:
		return fmt.Errorf("TRAINS_CLIENT_TIMEOUT: must be positive, got %s", c.ClientTimeout)
	}
	return nil
}

// Addr UDP 监听地址
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GameConfig 把时长换算成 tick
func (c Config) GameConfig() game.Config {
	g := game.DefaultConfig(c.TickRate)
	g.RespawnCooldownTicks = game.DurationToTicks(c.RespawnCooldown, c.TickRate)
	g.DeliveryCooldownTicks = game.DurationToTicks(c.DeliveryCooldown, c.TickRate)
	return g
}

// RoomConfig 房间节奏与规模
func (c Config) RoomConfig() room.Config {
	return room.Config{
		Capacity:       c.PlayersPerRoom,
		TickRate:       c.TickRate,
		BroadcastRate:  c.BroadcastRate,
		WaitBeforeBots: c.WaitingTimeBeforeBots,
		Lifetime:       c.GameLifetime,
		CloseGrace:     c.CloseGrace,
		Game:           c.GameConfig(),
	}
}

// env 逐项读取，只保留第一个错误
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (e *env) string(key, def string) string {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func (e *env) int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

// duration 接受 Go 时长（"250ms"）或秒数（"30", "0.5"）
func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
