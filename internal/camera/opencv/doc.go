// Package opencv はOpenCV（gocv）経由のカメラバックエンド
//
// ビルドには OpenCV 4 と -tags opencv が必要。タグなしのビルドでは
// このパッケージは空になり、ffmpeg バックエンドのみが使える。
package opencv
