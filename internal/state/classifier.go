package state

import (
	"gesturecam/internal/config"
	"gesturecam/internal/landmark"
)

// MouthOpenThreshold は口が開いていると判定する唇の縦距離（正規化座標）
const MouthOpenThreshold = 0.05

// Classifier はランドマーク集合から状態を導出する
// 同じ入力には常に同じ結果を返す
type Classifier interface {
	Classify(set *landmark.Set) State
	Initial() State
	Kind() landmark.Kind
}

// NewClassifier はドメインに対応する分類器を返す
func NewClassifier(domain config.Domain) Classifier {
	if domain == config.DomainFace {
		return FaceClassifier{}
	}
	return HandClassifier{}
}

// fingerTips は親指以外の指先インデックス
var fingerTips = [...]int{landmark.IndexTip, landmark.MiddleTip, landmark.RingTip, landmark.PinkyTip}

// HandClassifier は伸びている指の本数を数える
type HandClassifier struct{}

// Classify は指の本数を返す
//
// 親指は先端が第一関節より左（x が小さい）なら伸びている。
// 他の指は先端が2つ手前の関節より上（y が小さい）なら伸びている。
func (HandClassifier) Classify(set *landmark.Set) State {
	s := State{Domain: config.DomainHand}
	if !set.Has(landmark.HandPoints - 1) {
		return s
	}

	p := set.Points
	if p[landmark.ThumbTip].X < p[landmark.ThumbIP].X {
		s.Count++
	}
	for _, tip := range fingerTips {
		if p[tip].Y < p[tip-2].Y {
			s.Count++
		}
	}
	return s
}

// Initial は指0本を返す
func (HandClassifier) Initial() State { return Initial(config.DomainHand) }

// Kind は手のスキーマを返す
func (HandClassifier) Kind() landmark.Kind { return landmark.KindHand }

// FaceClassifier は顔の有無と口の開閉を判定する
type FaceClassifier struct{}

// Classify は顔の状態を返す
func (FaceClassifier) Classify(set *landmark.Set) State {
	s := State{Domain: config.DomainFace, Face: FaceNotFound}
	if !set.Has(landmark.UpperLip, landmark.LowerLip) {
		return s
	}

	gap := set.Points[landmark.LowerLip].Y - set.Points[landmark.UpperLip].Y
	if gap > MouthOpenThreshold {
		s.Face = FaceMouthOpen
	} else {
		s.Face = FaceActive
	}
	return s
}

// Initial は "Scanning..." を返す
func (FaceClassifier) Initial() State { return Initial(config.DomainFace) }

// Kind は顔メッシュのスキーマを返す
func (FaceClassifier) Kind() landmark.Kind { return landmark.KindFace }
