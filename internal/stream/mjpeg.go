package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// Boundary はマルチパートの区切り文字列
	Boundary = "frame"
	// ContentType はMJPEGストリームのContent-Type
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
)

// WriteOptions は1視聴者分の配信設定
type WriteOptions struct {
	MaxFPS       float64       // 0 の場合は制限なし
	WriteTimeout time.Duration // 1パートあたりの書き込み期限（0 は無制限）
}

// SetHeaders はMJPEGストリーミング用のヘッダーを設定する
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
}

// AppendPart はフレームを1パート分の形式で buf に追加する
func AppendPart(buf *bytes.Buffer, frame []byte) {
	buf.WriteString("--" + Boundary + "\r\n")
	buf.WriteString("Content-Type: image/jpeg\r\n\r\n")
	buf.Write(frame)
	buf.WriteString("\r\n")
}

// WriteMJPEG は視聴者のフレームを w に書き続ける
//
// 各パートは1回の Write で書き込んでからフラッシュする。
// ctx のキャンセルでは nil を返し、配信終了時は ErrPublisherClosed、
// 書き込み失敗時は ErrViewerGone をラップして返す。
func WriteMJPEG(ctx context.Context, w http.ResponseWriter, v *Viewer, opts WriteOptions) error {
	rc := http.NewResponseController(w)

	var minInterval time.Duration
	if opts.MaxFPS > 0 {
		minInterval = time.Duration(float64(time.Second) / opts.MaxFPS)
	}

	var (
		buf  bytes.Buffer
		last time.Time
	)
	for {
		frame, err := v.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		// フレームレート制限（間引いたフレームは送らない）
		now := time.Now()
		if minInterval > 0 && !last.IsZero() && now.Sub(last) < minInterval {
			continue
		}
		last = now

		buf.Reset()
		AppendPart(&buf, frame)

		if opts.WriteTimeout > 0 {
			if err := rc.SetWriteDeadline(now.Add(opts.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return fmt.Errorf("%w: %v", ErrViewerGone, err)
			}
		}

		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("%w: %v", ErrViewerGone, err)
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("%w: %v", ErrViewerGone, err)
		}
	}
}
