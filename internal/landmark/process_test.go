package landmark

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeWorker は io.Pipe 越しにワーカープロトコルを話すテスト用ワーカー
type fakeWorker struct {
	codec    Codec
	requests *io.PipeReader // モデル → ワーカー
	replies  *io.PipeWriter // ワーカー → モデル
	got      chan Request
}

func startFakeWorker(t *testing.T, codec Codec, respond func(req Request) *Reply) (*ProcessModel, *fakeWorker) {
	t.Helper()

	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()

	w := &fakeWorker{codec: codec, requests: reqR, replies: repW, got: make(chan Request, 16)}

	go func() {
		for {
			payload, err := readFrame(reqR)
			if err != nil {
				return
			}
			var req Request
			if err := codec.Unmarshal(payload, &req); err != nil {
				return
			}
			w.got <- req
			reply := respond(req)
			if reply == nil {
				continue
			}
			data, err := codec.Marshal(reply)
			if err != nil {
				return
			}
			if err := writeFrame(repW, data); err != nil {
				return
			}
		}
	}()

	m := newStreamModel(reqW, repR, ProcessConfig{
		Kind:           KindHand,
		Codec:          codec,
		RequestTimeout: 500 * time.Millisecond,
	}, zerolog.Nop())

	t.Cleanup(func() {
		_ = m.Close()
		_ = repW.Close()
	})

	return m, w
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 24))
}

func handReply(seq uint64) *Reply {
	landmarks := make([][3]float64, HandPoints)
	for i := range landmarks {
		landmarks[i] = [3]float64{float64(i) / 100, 0.5, 0}
	}
	return &Reply{Seq: seq, Detected: true, Landmarks: landmarks}
}

// TestFrameRoundTrip は長さプレフィックスの読み書きをテストする
func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	messages := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xAB}, 4096)}

	for _, msg := range messages {
		if err := writeFrame(&buf, msg); err != nil {
			t.Fatalf("書き込みに失敗: %v", err)
		}
	}
	for i, want := range messages {
		got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("読み込みに失敗 (%d): %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("メッセージ %d が一致しません: got %d バイト, want %d バイト", i, len(got), len(want))
		}
	}
	if _, err := readFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("終端では io.EOF が期待されます: got %v", err)
	}
}

// TestReadFrameTooLarge は異常な長さを拒否することをテストする
func TestReadFrameTooLarge(t *testing.T) {
	r := bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := readFrame(r); err == nil {
		t.Error("大きすぎるメッセージでエラーが期待されました")
	}
}

// TestCodecByName はコーデック名の解決をテストする
func TestCodecByName(t *testing.T) {
	testCases := []struct {
		name      string
		want      string
		expectErr bool
	}{
		{"", "msgpack", false},
		{"msgpack", "msgpack", false},
		{"json", "json", false},
		{"protobuf", "", true},
	}

	for _, tc := range testCases {
		codec, err := CodecByName(tc.name)
		if tc.expectErr {
			if err == nil {
				t.Errorf("%q: エラーが期待されました", tc.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: 予期しないエラー: %v", tc.name, err)
			continue
		}
		if codec.Name() != tc.want {
			t.Errorf("%q: got %s, want %s", tc.name, codec.Name(), tc.want)
		}
	}
}

// TestReplySet は応答からランドマーク集合への変換をテストする
func TestReplySet(t *testing.T) {
	if set := (&Reply{Detected: false}).Set(KindHand); set != nil {
		t.Error("未検出の応答は nil になるべきです")
	}
	if set := (&Reply{Detected: true}).Set(KindHand); set != nil {
		t.Error("ランドマークのない応答は nil になるべきです")
	}

	set := handReply(1).Set(KindHand)
	if set == nil || len(set.Points) != HandPoints {
		t.Fatalf("21点の集合が期待されます: %+v", set)
	}
	if set.Points[ThumbTip].X != 0.04 {
		t.Errorf("座標が一致しません: got %v", set.Points[ThumbTip].X)
	}
	if !set.Has(Wrist, PinkyTip) || set.Has(HandPoints) {
		t.Error("Has の結果が不正です")
	}
}

// TestProcessModelDetect はワーカーとの1往復をテストする
func TestProcessModelDetect(t *testing.T) {
	for _, codec := range []Codec{msgpackCodec{}, jsonCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			m, w := startFakeWorker(t, codec, func(req Request) *Reply {
				return handReply(req.Seq)
			})

			set, err := m.Detect(context.Background(), testImage())
			if err != nil {
				t.Fatalf("推論に失敗: %v", err)
			}
			if set == nil || set.Kind != KindHand || len(set.Points) != HandPoints {
				t.Fatalf("手のランドマークが期待されます: %+v", set)
			}

			req := <-w.got
			if req.Width != 32 || req.Height != 24 {
				t.Errorf("画像サイズが一致しません: %dx%d", req.Width, req.Height)
			}
			if req.Kind != KindHand {
				t.Errorf("種別が一致しません: %s", req.Kind)
			}
			if len(req.JPEG) < 2 || req.JPEG[0] != 0xFF || req.JPEG[1] != 0xD8 {
				t.Error("JPEGのSOIマーカーがありません")
			}
		})
	}
}

// TestProcessModelNoDetection は未検出応答が (nil, nil) になることをテストする
func TestProcessModelNoDetection(t *testing.T) {
	m, _ := startFakeWorker(t, msgpackCodec{}, func(req Request) *Reply {
		return &Reply{Seq: req.Seq, Detected: false}
	})

	set, err := m.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if set != nil {
		t.Errorf("nil が期待されます: %+v", set)
	}
}

// TestProcessModelTimeout は応答がない場合にタイムアウトすることをテストする
func TestProcessModelTimeout(t *testing.T) {
	calls := 0
	m, _ := startFakeWorker(t, msgpackCodec{}, func(req Request) *Reply {
		calls++
		if calls == 1 {
			return nil // 1回目は応答しない
		}
		return handReply(req.Seq)
	})

	_, err := m.Detect(context.Background(), testImage())
	if !errors.Is(err, ErrModelTimeout) {
		t.Fatalf("ErrModelTimeout が期待されます: got %v", err)
	}

	// 次の要求は通常どおり処理される
	set, err := m.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("2回目の推論に失敗: %v", err)
	}
	if set == nil {
		t.Error("2回目は検出結果が期待されます")
	}
}

// TestProcessModelStaleReply は古い応答が捨てられることをテストする
func TestProcessModelStaleReply(t *testing.T) {
	m, w := startFakeWorker(t, msgpackCodec{}, func(req Request) *Reply {
		return nil
	})

	// 古い seq の応答と正しい応答を順に送る
	go func() {
		req := <-w.got
		stale, _ := w.codec.Marshal(&Reply{Seq: req.Seq + 100, Detected: false})
		_ = writeFrame(w.replies, stale)
		fresh, _ := w.codec.Marshal(handReply(req.Seq))
		_ = writeFrame(w.replies, fresh)
	}()

	set, err := m.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("推論に失敗: %v", err)
	}
	if set == nil {
		t.Error("正しい seq の応答が採用されるべきです")
	}
}

// TestProcessModelExited はワーカー終了後に ErrModelExited を返すことをテストする
func TestProcessModelExited(t *testing.T) {
	m, w := startFakeWorker(t, msgpackCodec{}, func(req Request) *Reply {
		return nil
	})

	_ = w.replies.Close()

	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("読み取りゴルーチンが終了しませんでした")
	}

	_, err := m.Detect(context.Background(), testImage())
	if !errors.Is(err, ErrModelExited) {
		t.Errorf("ErrModelExited が期待されます: got %v", err)
	}
}

// TestProcessModelWorkerError はワーカー側のエラー応答が未検出扱いになることをテストする
func TestProcessModelWorkerError(t *testing.T) {
	m, _ := startFakeWorker(t, jsonCodec{}, func(req Request) *Reply {
		return &Reply{Seq: req.Seq, Error: "decode failed"}
	})

	set, err := m.Detect(context.Background(), testImage())
	if err != nil || set != nil {
		t.Errorf("(nil, nil) が期待されます: got %+v, %v", set, err)
	}
}

// TestStartProcessEmptyCommand はコマンド未指定でエラーになることをテストする
func TestStartProcessEmptyCommand(t *testing.T) {
	if _, err := StartProcess(context.Background(), ProcessConfig{}, zerolog.Nop()); err == nil {
		t.Error("エラーが期待されました")
	}
}
