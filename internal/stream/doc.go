// Package stream は注釈済みフレームの配信を担う
//
// # 責務
// - 1つの生産者（キャプチャループ）から複数の視聴者へのフレーム配布
// - 視聴者ごとの有界バッファと古いフレームの破棄
// - multipart/x-mixed-replace 形式での書き込み
//
// # 仕様
// - Publish はブロックしない。遅い視聴者は自分のフレームを失うだけ
// - 視聴者の切断は他の視聴者に影響しない
// - Close で全視聴者のストリームが終わる
// - 各パートは "--frame\r\nContent-Type: image/jpeg\r\n\r\n<jpeg>\r\n"
package stream
