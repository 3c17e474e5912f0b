package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// 生成一张纯色PNG用于压缩测试
func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 128, B: 64, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("生成测试PNG失败: %v", err)
	}
	return buf.Bytes()
}

// 生成一张高质量JPEG用于缩放测试
func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x * y) % 256), G: uint8(x % 256), B: uint8(y % 256), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("生成测试JPEG失败: %v", err)
	}
	return buf.Bytes()
}

func TestCompressImageResizesLargeImage(t *testing.T) {
	raw := makeJPEG(t, 2400, 1200)

	out, ext, contentType := compressImage(raw, ".jpeg", "image/jpeg")

	// 长边超过1920的图片重编码为质量85的JPEG
	if ext != ".jpg" || contentType != "image/jpeg" {
		t.Fatalf("期望输出JPEG, got ext=%s type=%s", ext, contentType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("输出解码失败: %v", err)
	}
	if cfg.Width > 1920 || cfg.Height > 1920 {
		t.Errorf("缩放未生效: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCompressImageKeepsOriginalWhenNotSmaller(t *testing.T) {
	// 1x1 图片压缩后只会更大，应保留原始字节
	raw := makePNG(t, 1, 1)

	out, ext, contentType := compressImage(raw, ".png", "image/png")

	if !bytes.Equal(out, raw) {
		t.Error("体积未减小时应保留原始文件")
	}
	if ext != ".png" || contentType != "image/png" {
		t.Errorf("保留原始文件时不应改变类型: ext=%s type=%s", ext, contentType)
	}
}

func TestCompressImageInvalidBytesPassthrough(t *testing.T) {
	raw := []byte("这不是一张图片")

	out, ext, contentType := compressImage(raw, ".bin", "application/octet-stream")

	if !bytes.Equal(out, raw) || ext != ".bin" || contentType != "application/octet-stream" {
		t.Error("解码失败时应原样返回")
	}
}

func TestIsImageExt(t *testing.T) {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".JPG"} {
		if !isImageExt(ext) {
			t.Errorf("%s 应被识别为图片", ext)
		}
	}
	for _, ext := range []string{".mp4", ".pdf", ".exe", ""} {
		if isImageExt(ext) {
			t.Errorf("%s 不应被识别为图片", ext)
		}
	}
}
