package features_test

import (
	"image"
	"image/color"
	"image/color/palette"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"greenr/internal/features"
	"greenr/internal/featurestore"
	"greenr/internal/logging"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return path
}

func TestExtractSolidRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}

	got := features.Extract(writePNG(t, img))
	want := featurestore.Attributes{
		"width": int64(4), "height": int64(2), "mode": "RGB", "aspect_ratio": 2.0,
		"mean_r": 10.0, "mean_g": 20.0, "mean_b": 30.0,
		"std_r": 0.0, "std_g": 0.0, "std_b": 0.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected attributes (-want +got):\n%s", diff)
	}
}

func TestExtractPopulationStdDev(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 10, B: 100, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 30, B: 100, A: 255})

	got := features.ExtractImage(img, "png")
	approx := cmpopts.EquateApprox(0, 1e-9)
	checks := map[string]float64{
		"mean_r": 127.5, "std_r": 127.5,
		"mean_g": 20, "std_g": 10,
		"mean_b": 100, "std_b": 0,
		"aspect_ratio": 2,
	}
	for key, want := range checks {
		if !cmp.Equal(want, got[key], approx) {
			t.Errorf("%s = %v, want %v", key, got[key], want)
		}
	}
}

func TestExtractAlphaIsDroppedNotPremultiplied(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	got := features.Extract(writePNG(t, img))
	if got["mode"] != "RGBA" {
		t.Fatalf("expected RGBA mode, got %v", got["mode"])
	}
	if got["mean_r"] != 200.0 || got["mean_g"] != 100.0 || got["mean_b"] != 50.0 {
		t.Fatalf("expected unpremultiplied channels, got %v/%v/%v", got["mean_r"], got["mean_g"], got["mean_b"])
	}
}

func TestExtractModes(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	gray16 := image.NewGray16(image.Rect(0, 0, 3, 3))
	paletted := image.NewPaletted(image.Rect(0, 0, 3, 3), palette.Plan9)

	tests := []struct {
		name string
		img  image.Image
		want string
	}{
		{"gray", gray, "L"},
		{"gray16", gray16, "I;16"},
		{"paletted", paletted, "P"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := features.Extract(writePNG(t, tt.img))
			if got["mode"] != tt.want {
				t.Fatalf("mode = %v, want %s", got["mode"], tt.want)
			}
		})
	}
	if got := features.Mode(image.NewCMYK(image.Rect(0, 0, 1, 1))); got != "CMYK" {
		t.Fatalf("CMYK mode = %s", got)
	}
}

func TestModeFollowsAlphaChannelNotPixels(t *testing.T) {
	opaqueNRGBA := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	opaqueRGBA := image.NewRGBA(image.Rect(0, 0, 2, 2))
	translucentRGBA := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			opaqueNRGBA.SetNRGBA(x, y, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
			opaqueRGBA.SetRGBA(x, y, color.RGBA{R: 1, G: 2, B: 3, A: 255})
		}
	}
	translucentRGBA.SetRGBA(0, 0, color.RGBA{R: 1, G: 1, B: 1, A: 1})

	tests := []struct {
		name string
		img  image.Image
		want string
	}{
		{"opaque nrgba", opaqueNRGBA, "RGBA"},
		{"opaque nrgba64", image.NewNRGBA64(image.Rect(0, 0, 1, 1)), "RGBA"},
		{"opaque rgba", opaqueRGBA, "RGB"},
		{"translucent rgba", translucentRGBA, "RGBA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := features.Mode(tt.img); got != tt.want {
				t.Fatalf("mode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 180, B: 60, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "img.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	got := features.Extract(path)
	if got["width"] != int64(16) || got["height"] != int64(8) || got["mode"] != "RGB" {
		t.Fatalf("unexpected geometry/mode: %v", got)
	}
	if mean := got["mean_g"].(float64); math.Abs(mean-180) > 3 {
		t.Fatalf("mean_g = %v, want about 180", mean)
	}
}

func TestExtractZeroHeightAspect(t *testing.T) {
	got := features.ExtractImage(image.NewNRGBA(image.Rect(0, 0, 5, 0)), "png")
	if got["aspect_ratio"] != 0.0 {
		t.Fatalf("aspect_ratio = %v, want 0", got["aspect_ratio"])
	}
	if got["mean_r"] != 0.0 {
		t.Fatalf("mean of empty image = %v, want 0", got["mean_r"])
	}
}

func TestExtractCorruptImageYieldsEmptyBag(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(corrupt, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{corrupt, filepath.Join(dir, "missing.png")} {
		got := features.ExtractWithLogger(path, logging.NewNop())
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil bag for %s, got %#v", path, got)
		}
	}

	store := featurestore.Open(featurestore.NewMemoryBackend(), logging.NewNop())
	if err := store.Upsert(corrupt, "grass", features.Extract(corrupt), nil); err != nil {
		t.Fatalf("upsert of empty bag failed: %v", err)
	}
	records := store.Query(featurestore.Filter{SourcePath: corrupt})
	if len(records) != 1 || len(records[0].Attributes) != 0 {
		t.Fatalf("expected one attribute-less record, got %#v", records)
	}
}

func TestExtractedBagIsAcceptedByStore(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	path := writePNG(t, img)

	store := featurestore.Open(featurestore.NewMemoryBackend(), logging.NewNop())
	if err := store.Upsert(path, "dandelion", features.Extract(path), nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, ok := store.Get(path)
	if !ok || len(rec.Attributes) != 10 {
		t.Fatalf("expected 10 attributes, got %#v", rec.Attributes)
	}
}
