package landmark

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize は受信メッセージの上限（壊れた長さプレフィックス対策）
const maxMessageSize = 32 << 20

// Request はワーカーに送る1フレーム分の推論要求
type Request struct {
	Seq    uint64 `json:"seq" msgpack:"seq"`
	Width  int    `json:"width" msgpack:"width"`
	Height int    `json:"height" msgpack:"height"`
	Kind   Kind   `json:"kind" msgpack:"kind"`
	JPEG   []byte `json:"jpeg" msgpack:"jpeg"` // json では base64 になる
}

// Reply はワーカーからの推論結果
type Reply struct {
	Seq       uint64       `json:"seq" msgpack:"seq"`
	Detected  bool         `json:"detected" msgpack:"detected"`
	Landmarks [][3]float64 `json:"landmarks" msgpack:"landmarks"`
	Error     string       `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Set は Reply をランドマーク集合に変換する
func (r *Reply) Set(kind Kind) *Set {
	if !r.Detected || len(r.Landmarks) == 0 {
		return nil
	}
	points := make([]Point, len(r.Landmarks))
	for i, l := range r.Landmarks {
		points[i] = Point{X: l[0], Y: l[1], Z: l[2]}
	}
	return &Set{Kind: kind, Points: points}
}

// Codec はワーカーとの通信フォーマット
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CodecByName は名前からコーデックを返す
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "msgpack":
		return msgpackCodec{}, nil
	case "json":
		return jsonCodec{}, nil
	default:
		return nil, fmt.Errorf("サポートされていないコーデック: %q", name)
	}
}

// writeFrame は 4バイトのビッグエンディアン長 + ペイロードを書き込む
func writeFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

// readFrame は長さプレフィックス付きのメッセージを1つ読み込む
func readFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("メッセージが大きすぎます: %d バイト", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
