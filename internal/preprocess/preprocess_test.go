package preprocess_test

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPreprocessor(t *testing.T, cfg preprocess.Config, pool *testutil.CountingPool) *preprocess.Preprocessor {
	t.Helper()
	p, err := preprocess.New(cfg, preprocess.WithPool(pool))
	require.NoError(t, err)
	return p
}

func TestToTensor_ShapeAndRelease(t *testing.T) {
	pool := &testutil.CountingPool{}
	p := newPreprocessor(t, preprocess.DefaultConfig(), pool)

	img := testutil.FoodImage(testutil.MediumSize, testutil.PizzaColor)
	res := preprocess.NewBytesResource("pizza.jpg", testutil.EncodeJPEG(t, img))

	tensor, err := p.ToTensor(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 224, 224}, tensor.Shape())
	assert.Len(t, tensor.Data(), 3*224*224)

	tensor.Release()
	tensor.Release()
	assert.Nil(t, tensor.Data())

	acquired, released := pool.Counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestToTensor_Normalisation(t *testing.T) {
	pool := &testutil.CountingPool{}
	cfg := preprocess.DefaultConfig()
	cfg.Size = 8
	p := newPreprocessor(t, cfg, pool)

	white := testutil.CreateTestImage(20, 10, color.White)
	res := preprocess.NewBytesResource("white.png", testutil.EncodePNG(t, white))

	tensor, err := p.ToTensor(context.Background(), res)
	require.NoError(t, err)
	defer tensor.Release()

	plane := 8 * 8
	data := tensor.Data()
	for c := range 3 {
		want := (1 - preprocess.ImageNetMean[c]) / preprocess.ImageNetStd[c]
		assert.InDelta(t, want, data[c*plane], 1e-4, "channel %d", c)
		assert.InDelta(t, want, data[c*plane+plane-1], 1e-4, "channel %d", c)
	}
}

func TestToTensor_ChannelOrder(t *testing.T) {
	cfg := preprocess.Config{Size: 4, Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}}
	p := newPreprocessor(t, cfg, &testutil.CountingPool{})

	red := testutil.CreateTestImage(4, 4, color.RGBA{R: 255, A: 255})
	tensor, err := p.ToTensor(context.Background(), preprocess.NewBytesResource("red", testutil.EncodePNG(t, red)))
	require.NoError(t, err)
	defer tensor.Release()

	data := tensor.Data()
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, 0.0, data[16], 1e-6)
	assert.InDelta(t, 0.0, data[32], 1e-6)
}

func TestToTensor_Formats(t *testing.T) {
	img := testutil.FoodImage(testutil.ImageSize{Width: 64, Height: 48}, testutil.SushiColor)
	cases := map[string][]byte{
		"jpeg": testutil.EncodeJPEG(t, img),
		"png":  testutil.EncodePNG(t, img),
		"bmp":  testutil.EncodeBMP(t, img),
		"gif":  testutil.EncodeGIF(t, img),
	}
	pool := &testutil.CountingPool{}
	p := newPreprocessor(t, preprocess.Config{Size: 32}, pool)

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			tensor, err := p.ToTensor(context.Background(), preprocess.NewBytesResource(name, data))
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 3, 32, 32}, tensor.Shape())
			tensor.Release()
		})
	}
	acquired, released := pool.Counts()
	assert.Equal(t, acquired, released)
}

func TestToTensor_FileResource(t *testing.T) {
	path := testutil.WriteFoodImage(t, "ramen.png", testutil.RamenColor)
	p := newPreprocessor(t, preprocess.Config{Size: 16}, &testutil.CountingPool{})

	tensor, err := p.ToTensor(context.Background(), preprocess.FileResource(path))
	require.NoError(t, err)
	tensor.Release()
}

func TestToTensor_DecodeErrors(t *testing.T) {
	pool := &testutil.CountingPool{}
	cfg := preprocess.Config{Size: 16, MaxBytes: 64}
	p := newPreprocessor(t, cfg, pool)

	tests := []struct {
		name   string
		res    preprocess.Resource
		wantOp string
	}{
		{"nil resource", nil, "read"},
		{"empty bytes", preprocess.NewBytesResource("empty", nil), "read"},
		{"garbage", preprocess.NewBytesResource("garbage", []byte("definitely not an image")), "decode"},
		{"too large", preprocess.NewBytesResource("big", make([]byte, 65)), "read"},
		{"missing file", preprocess.FileResource(filepath.Join(t.TempDir(), "missing.jpg")), "open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := p.ToTensor(context.Background(), tt.res)
			assert.Nil(t, tensor)
			var de *preprocess.DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.wantOp, de.Op)
		})
	}

	acquired, _ := pool.Counts()
	assert.Zero(t, acquired, "no buffer may be acquired on a failed decode")
}

func TestToTensor_PixelLimit(t *testing.T) {
	pool := &testutil.CountingPool{}

	t.Run("declared size checked before decoding", func(t *testing.T) {
		p := newPreprocessor(t, preprocess.Config{Size: 16}, pool)
		header := testutil.PNGHeader(40000, 40000)

		_, err := p.ToTensor(context.Background(), preprocess.NewBytesResource("huge.png", header))
		var de *preprocess.DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "decode", de.Op)
		assert.Contains(t, err.Error(), "40000x40000")
	})

	t.Run("configured limit", func(t *testing.T) {
		p := newPreprocessor(t, preprocess.Config{Size: 16, MaxPixels: 64 * 48}, pool)
		img := testutil.FoodImage(testutil.ImageSize{Width: 64, Height: 48}, testutil.PizzaColor)

		tensor, err := p.ToTensor(context.Background(), preprocess.NewBytesResource("ok.png", testutil.EncodePNG(t, img)))
		require.NoError(t, err)
		tensor.Release()

		img = testutil.FoodImage(testutil.ImageSize{Width: 65, Height: 48}, testutil.PizzaColor)
		_, err = p.ToTensor(context.Background(), preprocess.NewBytesResource("big.png", testutil.EncodePNG(t, img)))
		var de *preprocess.DecodeError
		require.ErrorAs(t, err, &de)
	})

	acquired, released := pool.Counts()
	assert.Equal(t, acquired, released)
}

func TestToTensor_Cancelled(t *testing.T) {
	p := newPreprocessor(t, preprocess.Config{Size: 16}, &testutil.CountingPool{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ToTensor(ctx, preprocess.NewBytesResource("x", []byte{1}))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestToTensor_Concurrent(t *testing.T) {
	pool := &testutil.CountingPool{}
	p := newPreprocessor(t, preprocess.Config{Size: 32}, pool)
	data := testutil.EncodePNG(t, testutil.FoodImage(testutil.ImageSize{Width: 40, Height: 40}, testutil.BurgerColor))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tensor, err := p.ToTensor(context.Background(), preprocess.NewBytesResource("burger", data))
			if assert.NoError(t, err) {
				tensor.Release()
			}
		}()
	}
	wg.Wait()

	acquired, released := pool.Counts()
	assert.Equal(t, 8, acquired)
	assert.Equal(t, 8, released)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, preprocess.DefaultConfig().Validate())

	bad := preprocess.DefaultConfig()
	bad.Size = -1
	assert.Error(t, bad.Validate())

	bad = preprocess.DefaultConfig()
	bad.Std[1] = 0
	assert.Error(t, bad.Validate())

	bad = preprocess.DefaultConfig()
	bad.Filter = "sharpest"
	assert.Error(t, bad.Validate())

	_, err := preprocess.New(preprocess.Config{Size: 10, Filter: "bogus"})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	p, err := preprocess.New(preprocess.Config{})
	require.NoError(t, err)
	assert.Equal(t, preprocess.DefaultConfig(), p.Config())
	assert.Equal(t, []int64{1, 3, 224, 224}, p.Shape())
}
