package main

import (
	"context"
	"fmt"
	"os"

	"gesturecam/internal/app"
	"gesturecam/internal/config"
	"gesturecam/internal/logging"
)

func main() {
	// 設定を読み込む（CONFIG で設定ファイルを指定できる）
	cfg, err := config.Load(os.Getenv("CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)

	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error().Err(err).Msg("gesturecam stopped with error")
		os.Exit(1)
	}
}
