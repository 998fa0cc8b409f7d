package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trainarena/config"
	"trainarena/logging"
	"trainarena/server"
)

// 火车竞技场服务入口：读取配置、初始化日志、运行 UDP 服务直到收到退出信号
func main() {
	var envFile string
	flag.StringVar(&envFile, "env", ".env", "path of an optional .env file")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := logging.InitLogger(logging.Options{
		FilePath: cfg.LogFile,
		Level:    cfg.LogLevel,
		Console:  cfg.LogConsole,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logging.SyncLogger()

	srv, err := server.New(cfg, nil)
	if err != nil {
		logging.Log.Fatalw("start server", "err", err)
	}

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Log.Infow("train arena starting",
		"udp", srv.LocalAddr(),
		"admin", cfg.AdminAddr,
		"players_per_room", cfg.PlayersPerRoom,
		"tick_rate", cfg.TickRate,
	)
	if err := srv.Run(ctx); err != nil {
		logging.Log.Errorw("server stopped", "err", err)
		logging.SyncLogger()
		os.Exit(1)
	}
	logging.Log.Info("server stopped")
}
