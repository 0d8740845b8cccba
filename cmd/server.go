// Package main はGestureCamサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gesturecam/internal/app"
	"gesturecam/internal/camera"
	"gesturecam/internal/config"
	"gesturecam/internal/logging"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", os.Getenv("CONFIG"), "設定ファイルのパス")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 5000)")
		domain     = flag.String("domain", "", "分類対象: hand / face (デフォルト: hand)")
		backend    = flag.String("backend", "", "カメラバックエンド: ffmpeg / opencv / mock")
		device     = flag.Int("device", -1, "カメラ番号 /dev/video<N>")
		model      = flag.String("model", "", "ランドマークワーカーのコマンド")
		logLevel   = flag.String("log-level", "", "ログレベル: debug / info / warn / error")
		devices    = flag.Bool("list-devices", false, "カメラデバイスの一覧を表示")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("GestureCam")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("カメラバックエンド:", app.NewFactory().Backends())
		os.Exit(0)
	}

	if *devices {
		if err := listDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "デバイスの検索に失敗しました: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *domain != "" {
		cfg.Pipeline.Domain = config.Domain(*domain)
	}
	if *backend != "" {
		cfg.Camera.Backend = *backend
	}
	if *device >= 0 {
		cfg.Camera.DeviceIndex = *device
	}
	if *model != "" {
		cfg.Model.Command = *model
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "無効なオプションです: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	logger.Info().
		Str("addr", cfg.ServerAddress()).
		Str("domain", string(cfg.Pipeline.Domain)).
		Msg("starting GestureCam server")

	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

// listDevices は利用可能なV4L2デバイスを表示する
func listDevices() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	discovery := camera.NewLinuxDiscovery()
	found, err := discovery.ScanDevices(ctx)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("カメラデバイスが見つかりません")
		return nil
	}

	for _, dev := range found {
		info, err := discovery.GetDeviceInfo(ctx, dev)
		if err != nil {
			fmt.Printf("%s\t(情報を取得できません: %v)\n", dev, err)
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", info.Device, info.Name, info.Driver)
	}
	return nil
}
