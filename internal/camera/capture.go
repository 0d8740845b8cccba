package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegSource はffmpeg経由でV4L2デバイスから連続キャプチャする Source
type FFmpegSource struct {
	cfg       SourceConfig
	discovery Discovery
	logger    zerolog.Logger
	command   string

	frames  chan []byte // JPEGデータ。満杯なら古いものを捨てる
	pending []byte      // Open 時に受け取った最初のフレーム
	seq     uint64

	cancel context.CancelFunc
	closer io.Closer
	wg     sync.WaitGroup
}

// NewFFmpegSource は新しいFFmpegSourceを作成する
func NewFFmpegSource(cfg SourceConfig, discovery Discovery, logger zerolog.Logger) *FFmpegSource {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	return &FFmpegSource{
		cfg:       cfg,
		discovery: discovery,
		logger:    logger.With().Str("component", "camera").Str("device", cfg.Device).Logger(),
		command:   "ffmpeg",
		frames:    make(chan []byte, 2),
	}
}

// args はffmpegの引数を組み立てる
func (s *FFmpegSource) args() []string {
	return []string{
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"-r", strconv.Itoa(s.cfg.FPS),
		"-i", s.cfg.Device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// Open はffmpegを起動し、最初のフレームが届くまで待つ
func (s *FFmpegSource) Open(ctx context.Context) error {
	if !s.discovery.IsDeviceAvailable(ctx, s.cfg.Device) {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, s.cfg.Device)
	}

	// ストリームの寿命は Open の ctx ではなく Release で決まる
	streamCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(streamCtx, s.command, s.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stdoutパイプの作成に失敗: %v", ErrDeviceUnavailable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stderrパイプの作成に失敗: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: ffmpegの起動に失敗: %v", ErrDeviceUnavailable, err)
	}

	s.cancel = cancel

	// Wait は stderr を閉じるため、読み切ってから呼ぶ
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			s.logger.Warn().Str("ffmpeg", scanner.Text()).Send()
		}
	}()

	s.startReader(stdout, func() {
		<-stderrDone
		if err := cmd.Wait(); err != nil && streamCtx.Err() == nil {
			s.logger.Error().Err(err).Msg("ffmpeg exited")
		}
	})

	s.logger.Info().
		Int("width", s.cfg.Width).
		Int("height", s.cfg.Height).
		Int("fps", s.cfg.FPS).
		Msg("waiting for first frame")

	return s.awaitFirstFrame(ctx)
}

// startReader はJPEGストリームの読み取りを開始する
func (s *FFmpegSource) startReader(r io.Reader, onExit func()) {
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.frames)

		err := splitJPEGStream(r, s.push)
		if err != nil && !errors.Is(err, io.EOF) {
			s.logger.Error().Err(err).Msg("frame read error")
		}
		if onExit != nil {
			onExit()
		}
	}()
}

// push はフレームを送る。チャンネルがフルの場合は古いフレームを破棄
func (s *FFmpegSource) push(frame []byte) {
	select {
	case s.frames <- frame:
		return
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}
}

func (s *FFmpegSource) awaitFirstFrame(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-s.frames:
		if !ok {
			_ = s.Release()
			return fmt.Errorf("%w: 最初のフレームの前にストリームが終了しました", ErrDeviceUnavailable)
		}
		s.pending = data
		return nil
	case <-timer.C:
		_ = s.Release()
		return fmt.Errorf("%w: %s 以内にフレームが届きません", ErrDeviceUnavailable, s.cfg.OpenTimeout)
	case <-ctx.Done():
		_ = s.Release()
		return ctx.Err()
	}
}

// Capture は次のフレームをデコードして返す
func (s *FFmpegSource) Capture(ctx context.Context) (*Frame, error) {
	for {
		data := s.pending
		s.pending = nil

		if data == nil {
			var ok bool
			select {
			case data, ok = <-s.frames:
				if !ok {
					return nil, ErrEndOfStream
				}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			// 壊れたフレームは読み飛ばす
			s.logger.Warn().Err(err).Int("bytes", len(data)).Msg("skipping undecodable frame")
			continue
		}

		s.seq++
		return &Frame{
			Image:      ToRGBA(img, s.cfg.Width, s.cfg.Height),
			Seq:        s.seq,
			CapturedAt: time.Now(),
		}, nil
	}
}

// Release はffmpegを停止してゴルーチンの終了を待つ
func (s *FFmpegSource) Release() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.closer != nil {
		_ = s.closer.Close()
	}
	s.wg.Wait()
	return nil
}

// splitJPEGStream はSOI/EOIマーカーでストリームをJPEGフレームに分割する
func splitJPEGStream(r io.Reader, emit func([]byte)) error {
	buffer := make([]byte, 64*1024)
	var frameBuffer bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			frameBuffer.Write(buffer[:n])

			for {
				data := frameBuffer.Bytes()

				startIdx := bytes.Index(data, jpegSOI)
				if startIdx == -1 {
					// 最後の1バイトは次のSOIの前半かもしれない
					if len(data) > 1 {
						frameBuffer.Next(len(data) - 1)
					}
					break
				}

				endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
				if endIdx == -1 {
					// 完全なフレームがまだない
					frameBuffer.Next(startIdx)
					break
				}

				// マーカーのサイズを含める
				endIdx += startIdx + 2 + 2
				frame := make([]byte, endIdx-startIdx)
				copy(frame, data[startIdx:endIdx])
				frameBuffer.Next(endIdx)

				emit(frame)
			}
		}
		if err != nil {
			return err
		}
	}
}

// ToRGBA は画像をRGBAに変換する。サイズが異なる場合は拡大縮小する
func ToRGBA(img image.Image, width, height int) *image.RGBA {
	bounds := img.Bounds()
	if width <= 0 || height <= 0 {
		width, height = bounds.Dx(), bounds.Dy()
	}

	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) && bounds.Dx() == width && bounds.Dy() == height {
		return rgba
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if bounds.Dx() == width && bounds.Dy() == height {
		xdraw.Draw(dst, dst.Bounds(), img, bounds.Min, xdraw.Src)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	}
	return dst
}
