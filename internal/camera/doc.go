// Package camera はキャプチャループが所有するフレーム取得元を提供する
//
// # 責務
// - V4L2デバイスの存在確認と情報取得
// - ffmpeg経由での連続キャプチャとJPEGストリームの分割
// - カメラの排他所有と1回限りの解放（Owned）
// - バックエンド名によるソースの生成（Factory）
//
// # 仕様
// - Open は起動時に1回だけ呼ばれ、失敗すると ErrDeviceUnavailable を返す
// - Capture の失敗は ErrEndOfStream で、ループを終了させる
// - Release 後の Capture は ErrReleased を返す
// - フレームは最新を優先し、読み手が遅い場合は古いフレームを捨てる
//
// # 前提要件
//   - ffmpeg: 画像キャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - v4l-utils: カメラ名の取得に使用（任意）
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
