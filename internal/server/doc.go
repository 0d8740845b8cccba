// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// 責務:
//   - ginによるルーティング（生成コードの ServerInterface を実装）
//   - ドメインごとのダッシュボードの配信
//   - MJPEGストリームの配信（視聴者ごとに stream.Viewer を購読）
//   - 最新状態の返却（/get_status, /get_count）と WebSocket での変化の通知
//
// 仕様:
//   - 状態エンドポイントは state.Cell を読むだけでキャプチャループを待たない
//   - 手モードでは /get_status、顔モードでは /get_count が 404 を返す
//   - 配信終了後の /video_feed は 503 を返す
//   - グレースフルシャットダウンに対応
package server
