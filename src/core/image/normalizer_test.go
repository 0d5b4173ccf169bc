package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("PNG编码失败: %v", err)
	}
	return buf.Bytes()
}

func decodeResult(t *testing.T, base64Data string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		t.Fatalf("base64解码失败: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("结果不是合法JPEG: %v", err)
	}
	return img
}

func TestNormalizePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	result, err := Normalize(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	out := decodeResult(t, result)
	if out.Bounds() != src.Bounds() {
		t.Errorf("尺寸 = %v, want %v", out.Bounds(), src.Bounds())
	}
}

func TestNormalizeFlattensAlpha(t *testing.T) {
	// 全透明图片应平铺到白色背景
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))

	result, err := Normalize(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	out := decodeResult(t, result)
	r, g, b, a := out.At(0, 0).RGBA()
	if a != 0xffff {
		t.Errorf("输出应不透明, alpha = %#x", a)
	}
	// JPEG有损，只要求接近白色
	if r < 0xf000 || g < 0xf000 || b < 0xf000 {
		t.Errorf("透明区域应为白色背景, got RGBA(%#x, %#x, %#x, %#x)", r, g, b, a)
	}
}

func TestNormalizeGIF(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 3, 3), []color.Color{color.White, color.Black})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, src, nil); err != nil {
		t.Fatalf("GIF编码失败: %v", err)
	}

	if _, err := Normalize(buf.Bytes()); err != nil {
		t.Errorf("Normalize() 应支持GIF输入: %v", err)
	}
}

func TestNormalizeJPEGPassthrough(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("JPEG编码失败: %v", err)
	}

	result, err := Normalize(buf.Bytes())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	decodeResult(t, result)
}

func TestNormalizeInvalidData(t *testing.T) {
	_, err := Normalize([]byte("不是图片数据"))
	if err == nil {
		t.Fatal("Normalize() 应对非图片数据返回错误")
	}

	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Errorf("错误类型 = %T, want *FormatError", err)
	}
}

func TestDataURL(t *testing.T) {
	url := DataURL("abc123")
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("DataURL前缀错误: %q", url)
	}
	if !strings.HasSuffix(url, "abc123") {
		t.Errorf("DataURL应以原始数据结尾: %q", url)
	}
}
