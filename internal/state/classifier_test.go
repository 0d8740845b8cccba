package state

import (
	"fmt"
	"testing"

	"gesturecam/internal/config"
	"gesturecam/internal/landmark"
)

// handSet は mask のビットに応じて指を伸ばした手を作る
// bit0: 親指, bit1〜4: 人差し指〜小指
func handSet(mask int) *landmark.Set {
	points := make([]landmark.Point, landmark.HandPoints)
	for i := range points {
		points[i] = landmark.Point{X: 0.5, Y: 0.5}
	}

	if mask&1 != 0 {
		points[landmark.ThumbTip].X = 0.3
	} else {
		points[landmark.ThumbTip].X = 0.7
	}

	for i, tip := range fingerTips {
		if mask&(1<<(i+1)) != 0 {
			points[tip].Y = 0.2
		} else {
			points[tip].Y = 0.8
		}
	}

	return &landmark.Set{Kind: landmark.KindHand, Points: points}
}

func faceSet(upper, lower float64) *landmark.Set {
	points := make([]landmark.Point, landmark.FacePoints)
	points[landmark.UpperLip].Y = upper
	points[landmark.LowerLip].Y = lower
	return &landmark.Set{Kind: landmark.KindFace, Points: points}
}

// TestHandClassifierAllCombinations は32通りすべての指の組み合わせをテストする
func TestHandClassifierAllCombinations(t *testing.T) {
	c := HandClassifier{}

	for mask := 0; mask < 32; mask++ {
		t.Run(fmt.Sprintf("mask=%05b", mask), func(t *testing.T) {
			want := 0
			for b := 0; b < 5; b++ {
				if mask&(1<<b) != 0 {
					want++
				}
			}

			got := c.Classify(handSet(mask))
			if got.Count != want {
				t.Errorf("指の本数が一致しません: got %d, want %d", got.Count, want)
			}
			if got.Domain != config.DomainHand {
				t.Errorf("ドメインが不正: %s", got.Domain)
			}
		})
	}
}

// TestHandClassifierThumbOnly は親指のみで1本になることをテストする
func TestHandClassifierThumbOnly(t *testing.T) {
	if got := (HandClassifier{}).Classify(handSet(1)); got.Count != 1 {
		t.Errorf("親指のみは1本のはず: got %d", got.Count)
	}
}

// TestHandClassifierNoHand は手がない場合に0本になることをテストする
func TestHandClassifierNoHand(t *testing.T) {
	testCases := []struct {
		name string
		set  *landmark.Set
	}{
		{"nil", nil},
		{"点が足りない", &landmark.Set{Kind: landmark.KindHand, Points: make([]landmark.Point, 5)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := (HandClassifier{}).Classify(tc.set); got.Count != 0 {
				t.Errorf("0本が期待されます: got %d", got.Count)
			}
		})
	}
}

// TestFaceClassifier は顔の状態判定をテストする
func TestFaceClassifier(t *testing.T) {
	testCases := []struct {
		name string
		set  *landmark.Set
		want FaceStatus
	}{
		{"顔なし", nil, FaceNotFound},
		{"点が足りない", &landmark.Set{Kind: landmark.KindFace, Points: make([]landmark.Point, 10)}, FaceNotFound},
		{"口を閉じている", faceSet(0.40, 0.41), FaceActive},
		{"ちょうど閾値", faceSet(0, 0.05), FaceActive},
		{"閾値をわずかに超える", faceSet(0, 0.0501), FaceMouthOpen},
		{"口を開けている", faceSet(0.40, 0.50), FaceMouthOpen},
		{"上下が逆", faceSet(0.50, 0.40), FaceActive},
	}

	c := FaceClassifier{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.set)
			if got.Face != tc.want {
				t.Errorf("状態が一致しません: got %q, want %q", got.Face, tc.want)
			}
			if got.Domain != config.DomainFace {
				t.Errorf("ドメインが不正: %s", got.Domain)
			}
		})
	}
}

// TestClassifierDeterministic は同じ入力に同じ結果を返すことをテストする
func TestClassifierDeterministic(t *testing.T) {
	set := handSet(0b10110)
	c := NewClassifier(config.DomainHand)
	first := c.Classify(set)
	for i := 0; i < 10; i++ {
		if got := c.Classify(set); got != first {
			t.Fatalf("結果が変化しました: %+v -> %+v", first, got)
		}
	}
}

// TestNewClassifier はドメインごとの分類器と初期状態をテストする
func TestNewClassifier(t *testing.T) {
	face := NewClassifier(config.DomainFace)
	if face.Kind() != landmark.KindFace {
		t.Errorf("顔分類器の種別が不正: %s", face.Kind())
	}
	if face.Initial().Face != FaceScanning {
		t.Errorf("顔の初期状態が不正: %q", face.Initial().Face)
	}

	hand := NewClassifier(config.DomainHand)
	if hand.Kind() != landmark.KindHand {
		t.Errorf("手分類器の種別が不正: %s", hand.Kind())
	}
	if hand.Initial().Count != 0 {
		t.Errorf("手の初期状態が不正: %d", hand.Initial().Count)
	}
}
