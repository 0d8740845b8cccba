package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrPublisherClosed は配信が終了した
	ErrPublisherClosed = errors.New("配信は終了しました")
	// ErrViewerGone は視聴者が切断した（その接続だけの問題）
	ErrViewerGone = errors.New("視聴者が切断しました")
)

// Viewer は1つの視聴者接続に対応する受信口
type Viewer struct {
	ID string

	frames chan []byte
	pub    *Publisher

	drops     atomic.Uint64
	delivered atomic.Uint64
}

// Next は次のフレームを待つ
func (v *Viewer) Next(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-v.frames:
		if !ok {
			if v.pub.isClosed() {
				return nil, ErrPublisherClosed
			}
			return nil, ErrViewerGone
		}
		v.delivered.Add(1)
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drops はバッファ溢れで捨てたフレーム数を返す
func (v *Viewer) Drops() uint64 { return v.drops.Load() }

// Delivered は受け取ったフレーム数を返す
func (v *Viewer) Delivered() uint64 { return v.delivered.Load() }

// Close は購読を解除する
func (v *Viewer) Close() { v.pub.Unsubscribe(v) }

// Stats は配信の統計
type Stats struct {
	Published uint64 `json:"published"`
	Viewers   int    `json:"viewers"`
	Drops     uint64 `json:"drops"`
}

// Publisher はエンコード済みフレームを全視聴者に配る
//
// Publish は決してブロックしない。視聴者ごとのバッファが満杯の場合は
// 最も古いフレームを捨てて新しいフレームを入れる。
type Publisher struct {
	buffer int
	logger zerolog.Logger

	mu      sync.RWMutex
	viewers map[string]*Viewer
	closed  bool

	latest    atomic.Pointer[[]byte]
	published atomic.Uint64
	drops     atomic.Uint64 // 切断済みの視聴者分を含む
}

// NewPublisher は新しいPublisherを作成する
func NewPublisher(buffer int, logger zerolog.Logger) *Publisher {
	if buffer < 1 {
		buffer = 1
	}
	return &Publisher{
		buffer:  buffer,
		logger:  logger.With().Str("component", "stream").Logger(),
		viewers: make(map[string]*Viewer),
	}
}

// Subscribe は新しい視聴者を登録する
// 直前に配信されたフレームがあればすぐに受け取れる
func (p *Publisher) Subscribe() (*Viewer, error) {
	v := &Viewer{
		ID:     uuid.NewString(),
		frames: make(chan []byte, p.buffer),
		pub:    p,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPublisherClosed
	}

	if latest := p.latest.Load(); latest != nil {
		v.frames <- *latest
	}
	p.viewers[v.ID] = v

	p.logger.Info().Str("viewer", v.ID).Int("viewers", len(p.viewers)).Msg("viewer subscribed")
	return v, nil
}

// Unsubscribe は視聴者を解除する（複数回呼んでも安全）
func (p *Publisher) Unsubscribe(v *Viewer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.viewers[v.ID]; !ok {
		return
	}
	delete(p.viewers, v.ID)
	close(v.frames)

	p.logger.Info().
		Str("viewer", v.ID).
		Uint64("delivered", v.Delivered()).
		Uint64("drops", v.Drops()).
		Int("viewers", len(p.viewers)).
		Msg("viewer unsubscribed")
}

// Publish はフレームを全視聴者に配る
func (p *Publisher) Publish(frame []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	p.latest.Store(&frame)
	p.published.Add(1)

	for _, v := range p.viewers {
		p.deliver(v, frame)
	}
}

// deliver はチャンネルがフルの場合は古いフレームを破棄して送る
func (p *Publisher) deliver(v *Viewer, frame []byte) {
	select {
	case v.frames <- frame:
		return
	default:
	}

	select {
	case <-v.frames:
		v.drops.Add(1)
		p.drops.Add(1)
	default:
	}

	select {
	case v.frames <- frame:
	default:
		v.drops.Add(1)
		p.drops.Add(1)
	}
}

// Close は配信を終了し、全視聴者のストリームを終わらせる
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for id, v := range p.viewers {
		close(v.frames)
		delete(p.viewers, id)
	}

	p.logger.Info().Uint64("published", p.published.Load()).Msg("publisher closed")
}

func (p *Publisher) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Viewers は現在の視聴者数を返す
func (p *Publisher) Viewers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.viewers)
}

// Stats は配信の統計を返す
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Viewers:   p.Viewers(),
		Drops:     p.drops.Load(),
	}
}
