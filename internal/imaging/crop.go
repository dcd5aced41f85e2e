// Package imaging bounds upload payload size: reference images are
// center-cropped to the requested aspect ratio and scaled down before they
// leave the machine. Callers treat failures here as soft and fall back
// to the original bytes rather than aborting the workflow.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

const (
	maxEdge     = 1280
	jpegQuality = 85
)

// CropToAspect decodes data (JPEG or PNG), center-crops it to the given
// "W:H" aspect ratio, scales the result so its longest edge is at most
// maxEdge, and re-encodes as JPEG.
func CropToAspect(data []byte, aspect string) ([]byte, error) {
	ratio, err := parseAspect(aspect)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	cropped := centerCrop(src, ratio)
	scaled := scaleDown(cropped)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), nil
}

func parseAspect(aspect string) (float64, error) {
	parts := strings.SplitN(strings.TrimSpace(aspect), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid aspect ratio %q", aspect)
	}

	width, wErr := strconv.ParseFloat(parts[0], 64)
	height, hErr := strconv.ParseFloat(parts[1], 64)
	if wErr != nil || hErr != nil || width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid aspect ratio %q", aspect)
	}

	return width / height, nil
}

func centerCrop(src image.Image, ratio float64) image.Image {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	cropW := srcW
	cropH := int(float64(srcW) / ratio)
	if cropH > srcH {
		cropH = srcH
		cropW = int(float64(srcH) * ratio)
	}

	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	rect := image.Rect(0, 0, cropW, cropH)

	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, src, image.Pt(x0, y0), draw.Src)

	return dst
}

func scaleDown(src image.Image) image.Image {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxEdge {
		return src
	}

	scale := float64(maxEdge) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	return dst
}
