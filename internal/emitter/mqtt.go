// Package emitter は状態の変化を外部に通知する
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gesturecam/internal/config"
	"gesturecam/internal/state"
)

var (
	// ErrNotConnected はブローカーに接続していない
	ErrNotConnected = errors.New("MQTTブローカーに接続していません")
	// ErrTimeout はブローカーからの応答が期限内に来なかった
	ErrTimeout = errors.New("MQTTの応答がタイムアウトしました")
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Client は使用するMQTTクライアントの操作（mqtt.Client が満たす）
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Message はブローカーに送る状態
type Message struct {
	Domain     config.Domain `json:"domain"`
	Count      *int          `json:"count,omitempty"`
	Status     string        `json:"status,omitempty"`
	Generation uint64        `json:"generation"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewMessage はスナップショットから送信内容を作る
func NewMessage(snap state.Snapshot, now time.Time) Message {
	msg := Message{
		Domain:     snap.State.Domain,
		Generation: snap.Generation,
		Timestamp:  now,
	}
	if snap.State.Domain == config.DomainFace {
		msg.Status = string(snap.State.Face)
	} else {
		count := snap.State.Count
		msg.Count = &count
	}
	return msg
}

// Stats は送信の統計
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// MQTTEmitter は状態が変わるたびに retained メッセージを送る
//
// Notify はキャプチャループから呼ばれるため決してブロックしない。
// 送信待ちは1件だけ保持し、新しい状態が来たら古いものを捨てる。
type MQTTEmitter struct {
	client Client
	topic  string
	qos    byte
	logger zerolog.Logger

	pending chan state.Snapshot
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
}

// New はpahoクライアントを使うエミッターを作成する
func New(cfg config.MQTTConfig, logger zerolog.Logger) *MQTTEmitter {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gesturecam-" + uuid.NewString()
	}
	logger = logger.With().Str("component", "mqtt").Str("broker", cfg.Broker).Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("client_id", clientID).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost, reconnecting")
	})

	return NewWithClient(mqtt.NewClient(opts), cfg.Topic, logger)
}

// NewWithClient は任意のクライアントを使うエミッターを作成する
func NewWithClient(client Client, topic string, logger zerolog.Logger) *MQTTEmitter {
	return &MQTTEmitter{
		client:  client,
		topic:   topic,
		qos:     1,
		logger:  logger,
		pending: make(chan state.Snapshot, 1),
		stop:    make(chan struct{}),
	}
}

// Connect はブローカーに接続して送信ゴルーチンを開始する
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("%w: 接続", ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTTブローカーへの接続に失敗: %w", err)
	}

	e.wg.Add(1)
	go e.loop()
	return nil
}

// Notify は状態の変化を送信待ちにする
func (e *MQTTEmitter) Notify(snap state.Snapshot) {
	select {
	case e.pending <- snap:
		return
	default:
	}
	select {
	case <-e.pending:
		e.dropped.Add(1)
	default:
	}
	select {
	case e.pending <- snap:
	default:
		e.dropped.Add(1)
	}
}

func (e *MQTTEmitter) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case snap := <-e.pending:
			if err := e.Publish(snap); err != nil {
				e.logger.Warn().Err(err).Uint64("generation", snap.Generation).Msg("state publish failed")
			}
		}
	}
}

// Publish は状態を1件送信する
func (e *MQTTEmitter) Publish(snap state.Snapshot) error {
	if !e.client.IsConnected() {
		e.errors.Add(1)
		return ErrNotConnected
	}

	payload, err := json.Marshal(NewMessage(snap, time.Now()))
	if err != nil {
		e.errors.Add(1)
		return fmt.Errorf("状態のシリアライズに失敗: %w", err)
	}

	token := e.client.Publish(e.topic, e.qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.errors.Add(1)
		return fmt.Errorf("%w: 送信", ErrTimeout)
	}
	if err := token.Error(); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("状態の送信に失敗: %w", err)
	}

	e.published.Add(1)
	e.logger.Debug().Str("topic", e.topic).Int("size", len(payload)).Msg("state published")
	return nil
}

// Stats は送信の統計を返す
func (e *MQTTEmitter) Stats() Stats {
	return Stats{
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
		Errors:    e.errors.Load(),
	}
}

// Close は送信ゴルーチンを止めて切断する
func (e *MQTTEmitter) Close() {
	e.once.Do(func() {
		close(e.stop)
		e.wg.Wait()
		// 接続前でも再接続の試行を止めるために切断する
		connected := e.client.IsConnected()
		e.client.Disconnect(250)
		if connected {
			e.logger.Info().Msg("mqtt disconnected")
		}
	})
}
