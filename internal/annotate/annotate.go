// Package annotate はフレームにランドマークと状態を描き込む
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"gesturecam/internal/landmark"
	"gesturecam/internal/state"
)

var (
	captionColor  = color.RGBA{G: 255, A: 255} // 緑
	skeletonColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	jointColor    = color.RGBA{R: 255, A: 255}
	meshColor     = color.RGBA{R: 80, G: 200, B: 255, A: 255}
	shadowColor   = color.RGBA{A: 160}
)

// captionOrigin はキャプションのベースライン位置
var captionOrigin = image.Point{X: 40, Y: 100}

// Annotator はフレームへの描画を行う
type Annotator struct {
	// Scale はキャプションの拡大率（1 = 7x13 ピクセルのビットマップフォント）
	Scale int
}

// New は新しいAnnotatorを作成する
func New() *Annotator {
	return &Annotator{Scale: 3}
}

// Draw はランドマークとキャプションを img に直接描き込む
// set が nil の場合はキャプションのみを描く
func (a *Annotator) Draw(img *image.RGBA, set *landmark.Set, s state.State) {
	if set != nil {
		switch set.Kind {
		case landmark.KindHand:
			a.drawHand(img, set)
		case landmark.KindFace:
			a.drawFace(img, set)
		}
	}
	a.drawCaption(img, s.Label())
}

func (a *Annotator) drawHand(img *image.RGBA, set *landmark.Set) {
	bounds := img.Bounds()
	for _, conn := range landmark.HandConnections {
		if !set.Has(conn[0], conn[1]) {
			continue
		}
		drawLine(img, set.Points[conn[0]].Pixel(bounds), set.Points[conn[1]].Pixel(bounds), skeletonColor)
	}
	for _, p := range set.Points {
		fillSquare(img, p.Pixel(bounds), 2, jointColor)
	}
}

func (a *Annotator) drawFace(img *image.RGBA, set *landmark.Set) {
	bounds := img.Bounds()
	for i, p := range set.Points {
		px := p.Pixel(bounds)
		if i == landmark.UpperLip || i == landmark.LowerLip {
			fillSquare(img, px, 2, jointColor)
			continue
		}
		if px.In(bounds) {
			img.SetRGBA(px.X, px.Y, meshColor)
		}
	}
}

// drawCaption は拡大したビットマップ文字を影付きで描く
func (a *Annotator) drawCaption(img *image.RGBA, text string) {
	scale := a.Scale
	if scale < 1 {
		scale = 1
	}

	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	ascent := face.Metrics().Ascent.Ceil()

	// 等倍で描いてから拡大する
	glyphs := image.NewAlpha(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	origin := captionOrigin.Sub(image.Point{Y: ascent * scale})
	blit(img, glyphs, origin.Add(image.Point{X: scale, Y: scale}), scale, shadowColor)
	blit(img, glyphs, origin, scale, captionColor)
}

// blit はマスクの不透明な画素を scale 倍の正方形で塗る
func blit(dst *image.RGBA, mask *image.Alpha, origin image.Point, scale int, c color.RGBA) {
	src := image.NewUniform(c)
	mb := mask.Bounds()
	for y := mb.Min.Y; y < mb.Max.Y; y++ {
		for x := mb.Min.X; x < mb.Max.X; x++ {
			if mask.AlphaAt(x, y).A == 0 {
				continue
			}
			r := image.Rect(0, 0, scale, scale).Add(origin.Add(image.Point{X: x * scale, Y: y * scale}))
			draw.Draw(dst, r.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
		}
	}
}

// drawLine はブレゼンハムのアルゴリズムで線を引く
func drawLine(img *image.RGBA, p0, p1 image.Point, c color.RGBA) {
	dx := abs(p1.X - p0.X)
	dy := -abs(p1.Y - p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}

	e := dx + dy
	x, y := p0.X, p0.Y
	bounds := img.Bounds()
	for {
		if (image.Point{X: x, Y: y}).In(bounds) {
			img.SetRGBA(x, y, c)
		}
		if x == p1.X && y == p1.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func fillSquare(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	r := image.Rect(center.X-radius, center.Y-radius, center.X+radius+1, center.Y+radius+1)
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
