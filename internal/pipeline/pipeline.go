// Package pipeline はキャプチャから配信までのループを実装する
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gesturecam/internal/annotate"
	"gesturecam/internal/camera"
	"gesturecam/internal/landmark"
	"gesturecam/internal/state"
	"gesturecam/internal/stream"
)

// ErrCaptureFailure はフレーム取得または推論が続けられなくなった
var ErrCaptureFailure = errors.New("キャプチャループが継続できません")

// Observer は状態が変化したときに呼ばれる
// キャプチャループのゴルーチンで呼ばれるためブロックしてはならない
type Observer func(snap state.Snapshot)

// Options はループの設定
type Options struct {
	JPEGQuality int
	Annotate    bool
}

// Stats はループの統計
type Stats struct {
	Frames        uint64    `json:"frames"`
	Detections    uint64    `json:"detections"`
	ModelTimeouts uint64    `json:"model_timeouts"`
	EncodeErrors  uint64    `json:"encode_errors"`
	StartedAt     time.Time `json:"started_at"`
}

// Pipeline はカメラ・モデル・分類器・配信をつなぐループ
type Pipeline struct {
	source     camera.Source
	model      landmark.Model
	classifier state.Classifier
	cell       *state.Cell
	publisher  *stream.Publisher
	annotator  *annotate.Annotator
	opts       Options
	logger     zerolog.Logger

	observers []Observer

	frames        atomic.Uint64
	detections    atomic.Uint64
	modelTimeouts atomic.Uint64
	encodeErrors  atomic.Uint64
	startedAt     atomic.Pointer[time.Time]
}

// New は新しいPipelineを作成する
// source は開かれた状態で渡され、Run の終了時に解放される
func New(
	source camera.Source,
	model landmark.Model,
	classifier state.Classifier,
	cell *state.Cell,
	publisher *stream.Publisher,
	opts Options,
	logger zerolog.Logger,
) *Pipeline {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	if model == nil {
		model = landmark.Nop
	}

	p := &Pipeline{
		source:     source,
		model:      model,
		classifier: classifier,
		cell:       cell,
		publisher:  publisher,
		opts:       opts,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
	if opts.Annotate {
		p.annotator = annotate.New()
	}
	return p
}

// OnChange は状態変化の通知先を登録する（Run の前に呼ぶこと）
func (p *Pipeline) OnChange(fn Observer) {
	p.observers = append(p.observers, fn)
}

// Run はループを実行する
//
// ctx のキャンセルでは nil を返す。フレーム取得や推論が続けられない場合は
// ErrCaptureFailure をラップして返す。どちらの場合もカメラを解放し、
// 全視聴者のストリームを終わらせてから戻る。
func (p *Pipeline) Run(ctx context.Context) error {
	now := time.Now()
	p.startedAt.Store(&now)

	defer p.publisher.Close()
	defer func() {
		if releaseErr := p.source.Release(); releaseErr != nil {
			p.logger.Error().Err(releaseErr).Msg("failed to release camera")
		}
		p.logger.Info().Uint64("frames", p.frames.Load()).Msg("camera released")
	}()

	p.logger.Info().Str("domain", string(p.classifier.Initial().Domain)).Msg("capture loop started")

	var buf bytes.Buffer
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := p.step(ctx, &buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("capture loop stopped")
			return err
		}
	}
}

// step は1フレーム分の処理を行う
func (p *Pipeline) step(ctx context.Context, buf *bytes.Buffer) error {
	frame, err := p.source.Capture(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureFailure, err)
	}
	p.frames.Add(1)

	set, err := p.model.Detect(ctx, frame.Image)
	switch {
	case err == nil:
		if set != nil {
			p.detections.Add(1)
		}
		p.update(p.classifier.Classify(set))
	case errors.Is(err, landmark.ErrModelTimeout):
		// 状態は据え置き、映像だけ流す
		p.modelTimeouts.Add(1)
		p.logger.Warn().Err(err).Uint64("seq", frame.Seq).Msg("model timeout, keeping previous state")
		set = nil
	default:
		return fmt.Errorf("%w: %w", ErrCaptureFailure, err)
	}

	if p.annotator != nil {
		p.annotator.Draw(frame.Image, set, p.cell.Read())
	}

	buf.Reset()
	if err := jpeg.Encode(buf, frame.Image, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		p.encodeErrors.Add(1)
		p.logger.Warn().Err(err).Uint64("seq", frame.Seq).Msg("jpeg encode failed, dropping frame")
		return nil
	}

	// 視聴者に渡すため buf とは別の領域にコピーする
	encoded := make([]byte, buf.Len())
	copy(encoded, buf.Bytes())
	p.publisher.Publish(encoded)

	return nil
}

func (p *Pipeline) update(s state.State) {
	if !p.cell.Write(s) {
		return
	}

	snap := p.cell.Snapshot()
	p.logger.Debug().Str("state", snap.State.Label()).Uint64("generation", snap.Generation).Msg("state changed")
	for _, fn := range p.observers {
		fn(snap)
	}
}

// Stats はループの統計を返す
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Frames:        p.frames.Load(),
		Detections:    p.detections.Load(),
		ModelTimeouts: p.modelTimeouts.Load(),
		EncodeErrors:  p.encodeErrors.Load(),
	}
	if t := p.startedAt.Load(); t != nil {
		s.StartedAt = *t
	}
	return s
}
