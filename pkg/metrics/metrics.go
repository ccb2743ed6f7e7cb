// Package metrics measures how consistent a super-resolved image is with the
// low-resolution image it was produced from.
package metrics

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"srtile/internal/models"
	"srtile/pkg/codec"
)

// ValidationMetrics holds the consistency metrics of one image. They are
// computed on luminance in [0, 1] after the super-resolved image has been
// downsampled back to the input resolution.
type ValidationMetrics struct {
	// RMSE is the root mean square error between input and downsampled output
	RMSE float64

	// PSNR is the peak signal to noise ratio in dB. It is +Inf for identical images.
	PSNR float64

	// SSIM is the global structural similarity index, 1 for identical images
	SSIM float64

	// MI approximates the mutual information of the two luminance planes
	// under a Gaussian assumption
	MI float64

	// EntropyDiff is the absolute difference of the 256-bin Shannon
	// entropies, in bits
	EntropyDiff float64
}

// Compare downsamples superRes by scale and measures it against lowRes
func Compare(lowRes, superRes *models.Frame, scale int) (ValidationMetrics, error) {
	if scale <= 0 {
		return ValidationMetrics{}, fmt.Errorf("%w: %d", models.ErrInvalidScale, scale)
	}
	if want := lowRes.Shape.Scaled(scale); superRes.Shape != want {
		return ValidationMetrics{}, &models.ShapeMismatchError{Index: -1, Got: superRes.Shape, Want: want}
	}

	lrImg, err := codec.FrameToImage(lowRes)
	if err != nil {
		return ValidationMetrics{}, err
	}
	srImg, err := codec.FrameToImage(superRes)
	if err != nil {
		return ValidationMetrics{}, err
	}
	down := image.NewNRGBA(lrImg.Bounds())
	draw.ApproxBiLinear.Scale(down, down.Bounds(), srImg, srImg.Bounds(), draw.Src, nil)

	original := luminance(lrImg)
	restored := luminance(down)
	rmse := calculateRMSE(original, restored)
	return ValidationMetrics{
		RMSE:        rmse,
		PSNR:        calculatePSNR(rmse),
		SSIM:        calculateSSIM(original, restored),
		MI:          calculateMutualInformation(original, restored),
		EntropyDiff: math.Abs(calculateEntropy(original) - calculateEntropy(restored)),
	}, nil
}

// luminance returns the Rec. 601 luma of every pixel, row-major, in [0, 1]
func luminance(img *image.NRGBA) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, bl := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
			out = append(out, (0.299*r+0.587*g+0.114*bl)/255)
		}
	}
	return out
}

func calculateRMSE(original, reconstructed []float64) float64 {
	if len(original) == 0 {
		return 0
	}
	return floats.Distance(original, reconstructed, 2) / math.Sqrt(float64(len(original)))
}

// calculatePSNR converts an RMSE on a unit dynamic range to decibels
func calculatePSNR(rmse float64) float64 {
	if rmse == 0 {
		return math.Inf(1)
	}
	return -20 * math.Log10(rmse)
}

func calculateSSIM(original, reconstructed []float64) float64 {
	const (
		L  = 1.0
		k1 = 0.01
		k2 = 0.03
	)
	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	if len(original) < 2 {
		return 0
	}
	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)
	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den
}

// calculateMutualInformation uses MI = -0.5 * log(1 - rho^2), which holds for
// jointly Gaussian variables. Perfectly correlated planes report +Inf.
func calculateMutualInformation(original, reconstructed []float64) float64 {
	if len(original) < 2 {
		return 0
	}
	if stat.Variance(original, nil) == 0 || stat.Variance(reconstructed, nil) == 0 {
		return 0
	}
	rho := stat.Correlation(original, reconstructed, nil)
	if rho*rho >= 1 {
		return math.Inf(1)
	}
	return -0.5 * math.Log(1-rho*rho)
}

// calculateEntropy computes the Shannon entropy of a [0, 1] plane over 256 bins
func calculateEntropy(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	const numBins = 256
	hist := make([]float64, numBins)
	for _, v := range data {
		bin := int(v * (numBins - 1))
		hist[min(max(bin, 0), numBins-1)]++
	}
	floats.Scale(1/float64(len(data)), hist)
	return stat.Entropy(hist) / math.Ln2
}
