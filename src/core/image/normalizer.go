package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"  // 注册GIF解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// FormatError 图片格式错误
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("不支持的图片格式: %v", e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Normalize 将任意格式的图片字节规范化为base64编码的JPEG
// 带透明通道的图片会先平铺到白色背景上，下游模型不支持透明度
func Normalize(data []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", &FormatError{Err: err}
	}

	// 平铺透明通道，统一为不透明RGB
	flattened := flatten(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flattened, nil); err != nil {
		return "", fmt.Errorf("JPEG编码失败(原格式%s): %w", format, err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// flatten 将图片平铺到白色背景上
func flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, bounds, img, bounds.Min, draw.Over)
	return out
}

// DataURL 构造模型请求用的data URL
func DataURL(base64Data string) string {
	return "data:image/jpeg;base64," + base64Data
}
