package state

import (
	"strconv"
	"sync/atomic"

	"gesturecam/internal/config"
)

// FaceStatus は顔ドメインの状態ラベル
type FaceStatus string

const (
	FaceScanning  FaceStatus = "Scanning..."      // 起動直後
	FaceNotFound  FaceStatus = "No Face Detected" // 顔なし
	FaceActive    FaceStatus = "Face Active"      // 顔あり・口は閉じている
	FaceMouthOpen FaceStatus = "Mouth Open"       // 口が開いている
)

// State はフレームから導出される離散状態
type State struct {
	Domain config.Domain
	Count  int        // 手ドメイン: 伸びている指の本数（0〜5）
	Face   FaceStatus // 顔ドメイン
}

// Initial はドメインごとの初期状態を返す
func Initial(domain config.Domain) State {
	if domain == config.DomainFace {
		return State{Domain: domain, Face: FaceScanning}
	}
	return State{Domain: domain}
}

// Label は状態を人が読める文字列で返す
func (s State) Label() string {
	if s.Domain == config.DomainFace {
		return string(s.Face)
	}
	return "Fingers: " + strconv.Itoa(s.Count)
}

// Snapshot は世代番号付きの状態
type Snapshot struct {
	State      State
	Generation uint64 // Write のたびに1増える（初期値は0）
}

// Cell は最新の状態を1つだけ保持する共有セル
//
// 書き込みはキャプチャループのみ、読み込みは任意のゴルーチンから行う。
// 値はポインタごと差し替えるため、読み手が書きかけの値を見ることはない。
type Cell struct {
	current atomic.Pointer[Snapshot]
}

// NewCell は初期状態を持つセルを作成する
func NewCell(initial State) *Cell {
	c := &Cell{}
	c.current.Store(&Snapshot{State: initial})
	return c
}

// Write は状態を上書きする（最後の書き込みが勝つ）
// 値が変化した場合は true を返す
func (c *Cell) Write(s State) bool {
	prev := c.current.Load()
	c.current.Store(&Snapshot{State: s, Generation: prev.Generation + 1})
	return prev.State != s
}

// Read は最新の状態を返す。ブロックも失敗もしない
func (c *Cell) Read() State {
	return c.current.Load().State
}

// Snapshot は最新の状態と世代番号を返す
func (c *Cell) Snapshot() Snapshot {
	return *c.current.Load()
}
