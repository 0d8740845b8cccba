package landmark

import (
	"context"
	"image"
)

// Kind はランドマークのスキーマ種別
type Kind string

const (
	KindHand Kind = "hand" // 21点の手ランドマーク
	KindFace Kind = "face" // 468点（虹彩込みで478点）の顔メッシュ
)

// 手ランドマークのインデックス（MediaPipe Hands準拠）
const (
	Wrist      = 0
	ThumbCMC   = 1
	ThumbMCP   = 2
	ThumbIP    = 3
	ThumbTip   = 4
	IndexMCP   = 5
	IndexPIP   = 6
	IndexDIP   = 7
	IndexTip   = 8
	MiddleMCP  = 9
	MiddlePIP  = 10
	MiddleDIP  = 11
	MiddleTip  = 12
	RingMCP    = 13
	RingPIP    = 14
	RingDIP    = 15
	RingTip    = 16
	PinkyMCP   = 17
	PinkyPIP   = 18
	PinkyDIP   = 19
	PinkyTip   = 20
	HandPoints = 21
)

// 顔メッシュのインデックス（MediaPipe Face Mesh準拠）
const (
	UpperLip   = 13 // 上唇の内側
	LowerLip   = 14 // 下唇の内側
	FacePoints = 468
)

// HandConnections は手の骨格を描画するための接続リスト
var HandConnections = [][2]int{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Point は正規化座標 [0,1] 上の点
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Set は1フレーム分のランドマーク集合
// nil は「被写体なし」を表す
type Set struct {
	Kind   Kind
	Points []Point
}

// Has は指定インデックスがすべて存在するか返す
func (s *Set) Has(indices ...int) bool {
	if s == nil {
		return false
	}
	for _, i := range indices {
		if i < 0 || i >= len(s.Points) {
			return false
		}
	}
	return true
}

// Pixel は正規化座標を画像上のピクセル座標に変換する
func (p Point) Pixel(bounds image.Rectangle) image.Point {
	return image.Point{
		X: bounds.Min.X + int(p.X*float64(bounds.Dx())),
		Y: bounds.Min.Y + int(p.Y*float64(bounds.Dy())),
	}
}

// Model はフレームからランドマークを推論する外部モデル
//
// 被写体が検出されなかった場合は (nil, nil) を返す。
// エラーはモデル自体が利用できなくなったことを意味する。
type Model interface {
	Detect(ctx context.Context, frame image.Image) (*Set, error)
	Close() error
}

// ModelFunc は関数を Model として扱うためのアダプタ
type ModelFunc func(ctx context.Context, frame image.Image) (*Set, error)

// Detect は f を呼び出す
func (f ModelFunc) Detect(ctx context.Context, frame image.Image) (*Set, error) {
	return f(ctx, frame)
}

// Close は何もしない
func (f ModelFunc) Close() error { return nil }

// Nop は常に「未検出」を返すモデル
var Nop Model = ModelFunc(func(context.Context, image.Image) (*Set, error) {
	return nil, nil
})
