// Package predictor runs a super-resolution model over every image of a
// directory and stores the results in a per-run output folder.
package predictor

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"gopkg.in/yaml.v3"

	"srtile/internal/models"
	"srtile/pkg/codec"
	"srtile/pkg/inference"
	"srtile/pkg/metrics"
	"srtile/pkg/model"
	"srtile/pkg/tiling"
	"srtile/pkg/visualization"
)

// Extensions lists the accepted input file extensions
var Extensions = []string{".jpeg", ".jpg", ".png", ".webp"}

// RunConfigFile is written into every run folder
const RunConfigFile = "run_config.yml"

// Params holds the predictor configuration
type Params struct {
	// InputDir is the directory containing the low-resolution images
	InputDir string

	// OutputDir is the root of the results tree. Results of a run end up in
	// OutputDir/<input dir name>/<model basename>/<timestamp>.
	OutputDir string

	// Policy decides per image whether it is tiled
	Policy tiling.Policy

	// Options carries batch size, padding and pad mode for tiled images
	Options inference.Options

	// SaveIntermediaryResults saves the patch collection of tiled images
	SaveIntermediaryResults bool

	// IntermediaryDir is relative to the run folder
	IntermediaryDir string

	// ComputeMetrics compares every output against its input
	ComputeMetrics bool
}

// Result describes the outcome for one input image
type Result struct {
	Input   string
	Output  string
	Tiled   bool
	Elapsed time.Duration
	Metrics *metrics.ValidationMetrics
	Err     error
}

// Predictor handles prediction given an input model: it loads the images of
// the input directory, runs the model over them and saves the results.
type Predictor struct {
	params *Params
	logger *slog.Logger

	// images are the accepted input files, sorted by name
	images []string

	// outputDir is OutputDir/<input dir name>
	outputDir string

	// outputs maps every input file to its output file name
	outputs map[string]string

	// runDir is set by Process
	runDir string

	now func() time.Time
}

// NewPredictor scans the input directory and prepares the output directory.
// It fails if the directory holds no acceptable image.
func NewPredictor(params *Params, logger *slog.Logger) (*Predictor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	images, err := listImages(params.InputDir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no valid image files found in %s", params.InputDir)
	}

	outputs := outputNames(images)
	for _, path := range images {
		if outputs[path] != outputName(path) {
			logger.Warn("output name taken, renaming", "file", path, "output", outputs[path])
		}
	}

	name := filepath.Base(filepath.Clean(params.InputDir))
	return &Predictor{
		params:    params,
		logger:    logger,
		images:    images,
		outputs:   outputs,
		outputDir: filepath.Join(params.OutputDir, name),
		now:       time.Now,
	}, nil
}

// Images returns the input files that will be processed
func (p *Predictor) Images() []string {
	return p.images
}

// RunDir returns the folder of the last run, empty before Process
func (p *Predictor) RunDir() string {
	return p.runDir
}

// Process runs m over every input image. A failing image is logged and
// recorded in its Result; the remaining images are still processed. The
// returned error covers setup failures and cancellation only.
func (p *Predictor) Process(ctx context.Context, m model.Model) ([]Result, error) {
	runDir := filepath.Join(p.outputDir, model.Basename(m), p.now().Format("20060102_150405"))
	p.logger.Info("results folder", "path", runDir)
	if _, err := os.Stat(runDir); err == nil {
		p.logger.Warn("directory exists, might overwrite files", "path", runDir)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	p.runDir = runDir

	if err := p.writeRunConfig(m); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(p.images))
	for _, path := range p.images {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := p.processFile(ctx, m, path)
		if res.Err != nil {
			p.logger.Error("skipping image", "file", path, "error", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// processFile decodes one image, runs the forward pass and writes the result
func (p *Predictor) processFile(ctx context.Context, m model.Model, path string) Result {
	res := Result{Input: path, Output: filepath.Join(p.runDir, p.outputs[path])}
	p.logger.Info("processing file", "file", path)

	frame, err := loadFrame(path)
	if err != nil {
		res.Err = err
		return res
	}
	p.logger.Debug("decoded image", "file", path, "image", codec.Describe(frame))

	start := time.Now()
	opts := inference.OptionsFor(p.params.Policy, frame.Shape, p.params.Options)
	res.Tiled = opts.Tiled

	var writer *visualization.PatchWriter
	observers := []tiling.Observer{&logObserver{logger: p.logger}}
	if opts.Tiled && p.params.SaveIntermediaryResults {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		writer = visualization.NewPatchWriter(filepath.Join(p.runDir, p.params.IntermediaryDir, stem))
		observers = append(observers, writer)
	}
	opts.Observer = multiObserver(observers)

	sr, err := inference.Infer(ctx, frame, m, opts)
	if writer != nil {
		// Patches saved before a failure stay loadable
		if err := writer.Close(); err != nil {
			p.logger.Warn("failed to save intermediary results", "file", path, "error", err)
		}
	}
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", filepath.Base(path), err)
		return res
	}
	res.Elapsed = time.Since(start)
	p.logger.Info("elapsed time", "file", path, "seconds", res.Elapsed.Seconds(), "tiled", res.Tiled)

	if p.params.ComputeMetrics {
		vm, err := metrics.Compare(frame, sr, m.Scale())
		if err != nil {
			p.logger.Warn("failed to compute metrics", "file", path, "error", err)
		} else {
			res.Metrics = &vm
			p.logger.Info("consistency metrics", "file", path,
				"rmse", vm.RMSE, "psnr", vm.PSNR, "ssim", vm.SSIM, "entropyDiff", vm.EntropyDiff)
		}
	}

	if err := saveFrame(res.Output, sr); err != nil {
		res.Err = err
		return res
	}
	p.logger.Info("result saved", "path", res.Output)
	return res
}

// ForwardPass applies the tiling policy and runs the model over one frame
func (p *Predictor) ForwardPass(ctx context.Context, frame *models.Frame, m model.Model) (*models.Frame, error) {
	opts := inference.OptionsFor(p.params.Policy, frame.Shape, p.params.Options)
	if opts.Observer == nil {
		opts.Observer = &logObserver{logger: p.logger}
	}
	return inference.Infer(ctx, frame, m, opts)
}

// runConfig is the YAML document recorded next to the results of a run
type runConfig struct {
	Model       string         `yaml:"model"`
	ModelParams map[string]any `yaml:"modelParams,omitempty"`
	Scale       int            `yaml:"scale"`
	InputDir    string         `yaml:"inputDir"`
	Created     string         `yaml:"created"`
	Inference   struct {
		BatchSize       int    `yaml:"batchSize"`
		PatchSize       int    `yaml:"patchSize"`
		PaddingSize     int    `yaml:"paddingSize"`
		PadMode         string `yaml:"padMode"`
		TilingThreshold int    `yaml:"tilingThreshold"`
	} `yaml:"inference"`
}

func (p *Predictor) writeRunConfig(m model.Model) error {
	rc := runConfig{
		Model:    model.Basename(m),
		Scale:    m.Scale(),
		InputDir: p.params.InputDir,
		Created:  p.now().Format(time.RFC3339),
	}
	if d, ok := m.(model.Describer); ok {
		rc.ModelParams = d.Params()
	}
	rc.Inference.BatchSize = p.params.Options.BatchSize
	rc.Inference.PatchSize = p.params.Policy.PatchSize
	rc.Inference.PaddingSize = p.params.Options.PaddingSize
	rc.Inference.PadMode = p.params.Options.PadMode.String()
	rc.Inference.TilingThreshold = p.params.Policy.Threshold

	data, err := yaml.Marshal(&rc)
	if err != nil {
		return fmt.Errorf("error marshaling run config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.runDir, RunConfigFile), data, 0644); err != nil {
		return fmt.Errorf("error writing run config: %w", err)
	}
	return nil
}

// listImages returns the files of dir with an accepted extension, sorted
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !accepted(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func accepted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// outputName keeps the input file name. WebP inputs are written as PNG.
func outputName(input string) string {
	name := filepath.Base(input)
	if isWebP(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
	}
	return name
}

func isWebP(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".webp")
}

// outputNames assigns an output file name to every input. Inputs keep their
// own name; a WebP input whose PNG name is already taken gets a _webp
// suffix, then a counter, so no two inputs share an output.
func outputNames(images []string) map[string]string {
	names := make(map[string]string, len(images))
	taken := make(map[string]bool, len(images))
	for _, path := range images {
		if !isWebP(path) {
			names[path] = filepath.Base(path)
			taken[names[path]] = true
		}
	}
	for _, path := range images {
		if !isWebP(path) {
			continue
		}
		name := outputName(path)
		stem := strings.TrimSuffix(name, ".png")
		for i := 1; taken[name]; i++ {
			if i == 1 {
				name = stem + "_webp.png"
			} else {
				name = fmt.Sprintf("%s_webp%d.png", stem, i)
			}
		}
		names[path] = name
		taken[name] = true
	}
	return names
}

// loadFrame decodes an image file into a frame
func loadFrame(path string) (*models.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return codec.FrameFromImage(img), nil
}

// saveFrame encodes a frame as PNG or JPEG depending on the file extension
func saveFrame(path string, f *models.Frame) error {
	img, err := codec.FrameToImage(f)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return file.Close()
}
