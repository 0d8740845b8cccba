package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"gesturecam/internal/config"
	"gesturecam/internal/landmark"
	"gesturecam/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

// dashboard はドメインごとのページ
type dashboard struct {
	tmpl *template.Template
	data dashboardData
}

type dashboardData struct {
	Title      string
	Subtitle   string
	Engine     string
	Initial    string
	Points     int
	PollMillis int64
}

// newDashboard はドメインに対応するテンプレートを読み込む
func newDashboard(domain config.Domain) (*dashboard, error) {
	initial := state.Initial(domain)

	var (
		file string
		data dashboardData
	)
	switch domain {
	case config.DomainFace:
		file = "templates/face.html"
		data = dashboardData{
			Title:      "GestureCam Face Perception",
			Subtitle:   "Live landmark perception",
			Engine:     "Face Mesh",
			Initial:    string(initial.Face),
			Points:     landmark.FacePoints,
			PollMillis: (200 * time.Millisecond).Milliseconds(),
		}
	case config.DomainHand:
		file = "templates/hand.html"
		data = dashboardData{
			Title:      "GestureCam Hand Dashboard",
			Subtitle:   "GestureCam Control Center",
			Engine:     "Landmark worker",
			Initial:    fmt.Sprint(initial.Count),
			Points:     landmark.HandPoints,
			PollMillis: (100 * time.Millisecond).Milliseconds(),
		}
	default:
		return nil, fmt.Errorf("ダッシュボードのない領域: %q", domain)
	}

	tmpl, err := template.ParseFS(templateFS, file)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗: %w", err)
	}
	return &dashboard{tmpl: tmpl, data: data}, nil
}

// render はページを書き出す
func (d *dashboard) render(w io.Writer) error {
	return d.tmpl.Execute(w, d.data)
}
