//go:build opencv

package app

import "gesturecam/internal/camera/opencv"

func init() {
	backendRegistrars = append(backendRegistrars, opencv.Register)
}
