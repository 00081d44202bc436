package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	LargeSize  = ImageSize{1024, 768}
)

// Dish colours used to paint synthetic food photos.
var (
	PizzaColor    = color.RGBA{R: 214, G: 92, B: 38, A: 255}
	SushiColor    = color.RGBA{R: 245, G: 130, B: 100, A: 255}
	RamenColor    = color.RGBA{R: 230, G: 190, B: 110, A: 255}
	BurgerColor   = color.RGBA{R: 120, G: 70, B: 40, A: 255}
	EmpanadaColor = color.RGBA{R: 220, G: 170, B: 80, A: 255}
	TableColor    = color.RGBA{R: 90, G: 60, B: 45, A: 255}
)

// CreateTestImage creates a solid image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// FoodImage paints a white plate on a table with a dish-coloured disc in the middle.
func FoodImage(size ImageSize, dish color.Color) *image.NRGBA {
	img := imaging.New(size.Width, size.Height, TableColor)
	cx, cy := float64(size.Width)/2, float64(size.Height)/2
	plate := math.Min(cx, cy) * 0.9
	food := plate * 0.7
	for y := range size.Height {
		for x := range size.Width {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			switch {
			case d <= food:
				img.Set(x, y, dish)
			case d <= plate:
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// EncodeJPEG encodes img as JPEG bytes.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeBMP encodes img as BMP bytes.
func EncodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeGIF encodes img as a single-frame GIF.
func EncodeGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and IHDR chunk declaring a width x height
// RGB image with no pixel data. Decoding the header succeeds; decoding the
// image does not.
func PNGHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolour

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

// SaveImage saves an image; the format follows the file extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
}

// WriteFoodImage writes a synthetic dish photo into a temp dir and returns its path.
func WriteFoodImage(t *testing.T, name string, dish color.Color) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	SaveImage(t, FoodImage(SmallSize, dish), path)
	return path
}

// CountingPool is a tensor buffer pool that tracks acquisitions and releases.
type CountingPool struct {
	mu       sync.Mutex
	acquired int
	released int
}

// Get allocates a fresh buffer of length n.
func (p *CountingPool) Get(n int) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired++
	return make([]float32, n)
}

// Put records a release.
func (p *CountingPool) Put(buf []float32) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

// Counts returns how many buffers were acquired and released.
func (p *CountingPool) Counts() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}
