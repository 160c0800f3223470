package features

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"greenr/internal/featurestore"
	"greenr/internal/logging"
)

// Attribute names produced by ExtractImage.
const (
	AttrWidth       = "width"
	AttrHeight      = "height"
	AttrMode        = "mode"
	AttrAspectRatio = "aspect_ratio"
	AttrMeanR       = "mean_r"
	AttrMeanG       = "mean_g"
	AttrMeanB       = "mean_b"
	AttrStdR        = "std_r"
	AttrStdG        = "std_g"
	AttrStdB        = "std_b"
)

// Extract decodes the image at path and returns its attributes. Failures
// return an empty, non-nil bag.
func Extract(path string) featurestore.Attributes {
	return ExtractWithLogger(path, nil)
}

// ExtractWithLogger is Extract with failures reported to logger.
func ExtractWithLogger(path string, logger *slog.Logger) featurestore.Attributes {
	logger = logging.NewComponentLogger(logger, "features")

	f, err := os.Open(path)
	if err != nil {
		logging.WarnWithContext(logger, "image open failed; no features extracted", "feature_extract_failed",
			logging.String("image_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the file exists and is readable"),
			logging.String(logging.FieldImpact, "record is stored without attributes"),
		)
		return featurestore.Attributes{}
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		logging.WarnWithContext(logger, "image decode failed; no features extracted", "feature_extract_failed",
			logging.String("image_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "file is corrupt or not a JPEG/PNG/GIF/BMP/TIFF/WebP image"),
			logging.String(logging.FieldImpact, "record is stored without attributes"),
		)
		return featurestore.Attributes{}
	}

	attrs := ExtractImage(img, format)
	logger.Debug("image features extracted",
		logging.String("image_path", path),
		logging.String("format", format),
		logging.Any("attributes", attrs))
	return attrs
}

// ExtractImage computes attributes for an already decoded image.
func ExtractImage(img image.Image, format string) featurestore.Attributes {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	aspect := 0.0
	if height > 0 {
		aspect = float64(width) / float64(height)
	}

	stats := channelStats(img)
	return featurestore.Attributes{
		AttrWidth:       int64(width),
		AttrHeight:      int64(height),
		AttrMode:        Mode(img),
		AttrAspectRatio: aspect,
		AttrMeanR:       stats[0].mean(),
		AttrMeanG:       stats[1].mean(),
		AttrMeanB:       stats[2].mean(),
		AttrStdR:        stats[0].std(),
		AttrStdG:        stats[1].std(),
		AttrStdB:        stats[2].std(),
	}
}

// Mode returns a PIL-style colour mode label for the decoded image. Gray with
// alpha decodes to NRGBA and is reported as RGBA.
func Mode(img image.Image) string {
	switch img.(type) {
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "I;16"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	case *image.YCbCr:
		return "RGB"
	case *image.NYCbCrA, *image.NRGBA, *image.NRGBA64:
		// decoders only produce non-premultiplied images for sources that
		// carry an alpha channel, even when every pixel is opaque
		return "RGBA"
	}
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return "RGB"
	}
	switch img.ColorModel() {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.CMYKModel:
		return "CMYK"
	case color.YCbCrModel:
		return "RGB"
	}
	return "RGBA"
}

type accumulator struct {
	n     uint64
	sum   uint64
	sumSq uint64
}

func (a *accumulator) add(v uint8) {
	a.n++
	a.sum += uint64(v)
	a.sumSq += uint64(v) * uint64(v)
}

func (a accumulator) mean() float64 {
	if a.n == 0 {
		return 0
	}
	return float64(a.sum) / float64(a.n)
}

// std is the population standard deviation.
func (a accumulator) std() float64 {
	if a.n == 0 {
		return 0
	}
	n := float64(a.n)
	mean := float64(a.sum) / n
	variance := float64(a.sumSq)/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// channelStats walks every pixel as non-premultiplied 8-bit RGB, dropping alpha.
func channelStats(img image.Image) [3]accumulator {
	var acc [3]accumulator
	bounds := img.Bounds()

	switch src := img.(type) {
	case *image.YCbCr:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				yi := src.YOffset(x, y)
				ci := src.COffset(x, y)
				r, g, b := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				acc[0].add(r)
				acc[1].add(g)
				acc[2].add(b)
			}
		}
		return acc
	case *image.NRGBA:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, y):src.PixOffset(bounds.Max.X, y)]
			for i := 0; i+3 < len(row); i += 4 {
				acc[0].add(row[i])
				acc[1].add(row[i+1])
				acc[2].add(row[i+2])
			}
		}
		return acc
	case *image.Gray:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, y):src.PixOffset(bounds.Max.X, y)]
			for _, v := range row {
				acc[0].add(v)
				acc[1].add(v)
				acc[2].add(v)
			}
		}
		return acc
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			acc[0].add(c.R)
			acc[1].add(c.G)
			acc[2].add(c.B)
		}
	}
	return acc
}
