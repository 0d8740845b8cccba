package camera

import (
	"context"
	"errors"
	"image"
	"time"
)

// Status はカメラの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 未オープン
	StatusActive   Status = "active"   // キャプチャ中
	StatusError    Status = "error"    // キャプチャ失敗
	StatusReleased Status = "released" // 解放済み（再オープン不可）
)

var (
	// ErrDeviceUnavailable はカメラを開けなかった（起動時の致命的エラー）
	ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")
	// ErrEndOfStream はキャプチャが失敗した（ループ終了）
	ErrEndOfStream = errors.New("カメラからフレームを取得できません")
	// ErrReleased は解放済みのカメラにアクセスした
	ErrReleased = errors.New("カメラは解放済みです")
)

// Frame は1回のキャプチャで得られる画像
type Frame struct {
	Image      *image.RGBA // 1セッション中は同じサイズ
	Seq        uint64      // 1 から始まる連番
	CapturedAt time.Time
}

// Source はカメラなどのフレーム取得元
//
// Open は起動時に1回だけ呼ばれる。Capture はキャプチャループの
// ゴルーチンからのみ呼ばれる。Release はループが戻らない場合に
// 別のゴルーチンから、実行中の Capture と並行して呼ばれることがある。
type Source interface {
	// Open はデバイスを開く。失敗時は ErrDeviceUnavailable をラップして返す
	Open(ctx context.Context) error

	// Capture は次のフレームを返す。取得できない場合は ErrEndOfStream を返す
	Capture(ctx context.Context) (*Frame, error)

	// Release はデバイスを解放する。複数回呼んでも安全であること
	// 実行中の Capture があれば ErrEndOfStream で終わらせるか、
	// その Capture が戻るまで実際の解放を遅らせること
	Release() error
}

// SourceConfig はソース作成設定
type SourceConfig struct {
	Device      string        // デバイスパス（例: /dev/video0）
	Index       int           // デバイス番号（OpenCVで使用）
	Width       int           // 画像幅
	Height      int           // 画像高さ
	FPS         int           // フレームレート
	OpenTimeout time.Duration // 最初のフレームを待つ時間
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device string // デバイスパス
	Name   string // デバイス名
	Driver string // ドライバー名
}
