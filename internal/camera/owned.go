package camera

import (
	"context"
	"fmt"
	"sync"
)

// Owned はキャプチャループが排他的に所有するカメラ
//
// Release は何度呼ばれても下位の Source を1回だけ解放し、
// 解放後の Capture は ErrReleased を返す。
type Owned struct {
	src Source

	mu       sync.RWMutex
	status   Status
	captured uint64

	releaseOnce sync.Once
	releaseErr  error
}

// NewOwned は Source を所有権付きでラップする
func NewOwned(src Source) *Owned {
	return &Owned{src: src, status: StatusInactive}
}

// Open はデバイスを開く
func (o *Owned) Open(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.status {
	case StatusActive:
		return nil // 既にオープン済み
	case StatusReleased:
		return ErrReleased
	}

	if err := o.src.Open(ctx); err != nil {
		o.status = StatusError
		return fmt.Errorf("カメラのオープンに失敗: %w", err)
	}

	o.status = StatusActive
	return nil
}

// Capture は次のフレームを取得する
func (o *Owned) Capture(ctx context.Context) (*Frame, error) {
	o.mu.RLock()
	status := o.status
	o.mu.RUnlock()

	switch status {
	case StatusReleased:
		return nil, ErrReleased
	case StatusInactive:
		return nil, fmt.Errorf("%w: オープンされていません", ErrEndOfStream)
	}

	frame, err := o.src.Capture(ctx)
	if err != nil {
		o.mu.Lock()
		if o.status == StatusActive {
			o.status = StatusError
		}
		o.mu.Unlock()
		return nil, err
	}

	o.mu.Lock()
	o.captured++
	o.mu.Unlock()

	return frame, nil
}

// Release はデバイスを解放する（複数回呼んでも安全）
//
// ロックを持たずに下位の Release を呼ぶため、実行中の Capture を待たない。
// その Capture の扱いは Source の契約に従う。
func (o *Owned) Release() error {
	o.releaseOnce.Do(func() {
		o.mu.Lock()
		o.status = StatusReleased
		o.mu.Unlock()

		o.releaseErr = o.src.Release()
	})
	return o.releaseErr
}

// GetStatus はステータスを返す
func (o *Owned) GetStatus() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Captured はこれまでに取得したフレーム数を返す
func (o *Owned) Captured() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.captured
}
