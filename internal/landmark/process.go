package landmark

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
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrModelExited はワーカープロセスが終了した（以降の推論は不可能）
	ErrModelExited = errors.New("ランドマークワーカーが終了しました")
	// ErrModelTimeout は1フレームの推論が期限内に終わらなかった
	ErrModelTimeout = errors.New("ランドマーク推論がタイムアウトしました")
)

// ProcessConfig はワーカープロセスの設定
type ProcessConfig struct {
	Command        string
	Args           []string
	Kind           Kind
	Codec          Codec
	RequestTimeout time.Duration
	JPEGQuality    int
}

// ProcessModel は子プロセス（MediaPipe等）で動くランドマークモデル
//
// 1フレームごとに要求を1つ書き込み、応答を1つ待つ。
// フレーミングは 4バイト長プレフィックス + コーデック（msgpack / json）。
type ProcessModel struct {
	cfg    ProcessConfig
	logger zerolog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	replies chan *Reply
	done    chan struct{} // 読み取りゴルーチン終了時にクローズ
	readErr error

	detectMu sync.Mutex // Detect を直列化
	writeMu  sync.Mutex // タイムアウト後の書き込みとの混線を防ぐ
	seq      uint64

	closeOnce sync.Once
	closeErr  error
}

// StartProcess はワーカープロセスを起動する
func StartProcess(ctx context.Context, cfg ProcessConfig, logger zerolog.Logger) (*ProcessModel, error) {
	if cfg.Command == "" {
		return nil, errors.New("ワーカーコマンドが指定されていません")
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdinパイプの作成に失敗: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ワーカーの起動に失敗: %w", err)
	}

	m := newStreamModel(stdin, stdout, cfg, logger)
	m.cmd = cmd

	go m.logStderr(stderr)

	m.logger.Info().
		Str("command", cfg.Command).
		Int("pid", cmd.Process.Pid).
		Str("codec", m.cfg.Codec.Name()).
		Msg("landmark worker started")

	return m, nil
}

// newStreamModel は任意のストリーム上でモデルを構築する
func newStreamModel(w io.WriteCloser, r io.Reader, cfg ProcessConfig, logger zerolog.Logger) *ProcessModel {
	if cfg.Codec == nil {
		cfg.Codec = msgpackCodec{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}

	m := &ProcessModel{
		cfg:     cfg,
		logger:  logger.With().Str("component", "landmark").Logger(),
		stdin:   w,
		replies: make(chan *Reply, 1),
		done:    make(chan struct{}),
	}

	go m.readReplies(r)

	return m
}

// Detect は1フレームを推論する
func (m *ProcessModel) Detect(ctx context.Context, frame image.Image) (*Set, error) {
	m.detectMu.Lock()
	defer m.detectMu.Unlock()

	select {
	case <-m.done:
		return nil, m.exitError()
	default:
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: m.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("推論用JPEGエンコードに失敗: %w", err)
	}

	m.seq++
	bounds := frame.Bounds()
	payload, err := m.cfg.Codec.Marshal(&Request{
		Seq:    m.seq,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Kind:   m.cfg.Kind,
		JPEG:   buf.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("推論要求のエンコードに失敗: %w", err)
	}

	timer := time.NewTimer(m.cfg.RequestTimeout)
	defer timer.Stop()

	// 書き込みはハングしたワーカーでブロックしうるため別ゴルーチンで行う
	writeErr := make(chan error, 1)
	go func() {
		m.writeMu.Lock()
		defer m.writeMu.Unlock()
		writeErr <- writeFrame(m.stdin, payload)
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			return nil, fmt.Errorf("%w: 書き込みに失敗: %v", ErrModelExited, err)
		}
	case <-timer.C:
		return nil, fmt.Errorf("%w: 書き込み (seq=%d)", ErrModelTimeout, m.seq)
	case <-m.done:
		return nil, m.exitError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case reply := <-m.replies:
			if reply.Seq != m.seq {
				// タイムアウトした過去の要求への応答
				m.logger.Debug().Uint64("seq", reply.Seq).Uint64("want", m.seq).Msg("discarding stale reply")
				continue
			}
			if reply.Error != "" {
				m.logger.Warn().Uint64("seq", reply.Seq).Str("error", reply.Error).Msg("worker reported inference error")
				return nil, nil
			}
			return reply.Set(m.cfg.Kind), nil
		case <-timer.C:
			return nil, fmt.Errorf("%w: 応答待ち (seq=%d)", ErrModelTimeout, m.seq)
		case <-m.done:
			return nil, m.exitError()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// readReplies はワーカーの標準出力から応答を読み続ける
func (m *ProcessModel) readReplies(r io.Reader) {
	defer close(m.done)

	for {
		payload, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.readErr = err
			}
			return
		}

		var reply Reply
		if err := m.cfg.Codec.Unmarshal(payload, &reply); err != nil {
			m.logger.Error().Err(err).Int("bytes", len(payload)).Msg("failed to decode worker reply")
			continue
		}

		// 古い応答が残っていれば捨てて最新を入れる
		select {
		case m.replies <- &reply:
		default:
			select {
			case <-m.replies:
			default:
			}
			m.replies <- &reply
		}
	}
}

// logStderr はワーカーの標準エラー出力をログに流す
func (m *ProcessModel) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			m.logger.Error().Str("worker", line).Send()
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			m.logger.Warn().Str("worker", line).Send()
		default:
			m.logger.Debug().Str("worker", line).Send()
		}
	}
}

func (m *ProcessModel) exitError() error {
	if m.readErr != nil {
		return fmt.Errorf("%w: %v", ErrModelExited, m.readErr)
	}
	return ErrModelExited
}

// Close はワーカーを停止する（複数回呼んでも安全）
func (m *ProcessModel) Close() error {
	m.closeOnce.Do(func() {
		_ = m.stdin.Close()

		if m.cmd == nil {
			return
		}

		exited := make(chan error, 1)
		go func() { exited <- m.cmd.Wait() }()

		select {
		case <-exited:
		case <-time.After(2 * time.Second):
			m.logger.Warn().Msg("landmark worker did not exit, killing")
			if err := m.cmd.Process.Kill(); err != nil {
				m.closeErr = fmt.Errorf("ワーカーの強制終了に失敗: %w", err)
			}
			<-exited
		}
	})
	return m.closeErr
}
