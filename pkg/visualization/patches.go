// Package visualization saves the intermediate state of the tiled pipeline
// so that seams and misplaced tiles can be inspected.
package visualization

import (
	"encoding/binary"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"srtile/internal/models"
	"srtile/pkg/codec"
	"srtile/pkg/tiling"
)

const (
	// PatchDumpFile holds the raw float32 patch collection, zstd compressed
	PatchDumpFile = "patches.bin.zst"

	// GridFile describes the tiling grid of the dumped patches
	GridFile = "grid.yml"

	patchImageDir = "patches"
)

// GridInfo is the YAML form of a tiling grid
type GridInfo struct {
	PatchSize    int `yaml:"patchSize"`
	Padding      int `yaml:"padding"`
	Rows         int `yaml:"rows"`
	Cols         int `yaml:"cols"`
	PaddedHeight int `yaml:"paddedHeight"`
	PaddedWidth  int `yaml:"paddedWidth"`
	Groups       int `yaml:"groups"`
}

// PatchWriter is a tiling.Observer that saves the patch collection of one
// image into a directory: one PNG per patch, a raw dump and the grid.
//
// Observer methods cannot fail, so the first error is kept and reported by Err.
type PatchWriter struct {
	dir    string
	info   GridInfo
	err    error
	groups int
}

// NewPatchWriter creates a writer saving into dir
func NewPatchWriter(dir string) *PatchWriter {
	return &PatchWriter{dir: dir}
}

// PatchesCreated saves the patches and the grid
func (w *PatchWriter) PatchesCreated(patches []*models.Tensor, grid tiling.Grid) {
	if w.err != nil {
		return
	}
	w.info = GridInfo{
		PatchSize:    grid.PatchSize,
		Padding:      grid.Padding,
		Rows:         grid.Rows,
		Cols:         grid.Cols,
		PaddedHeight: grid.Padded.Height,
		PaddedWidth:  grid.Padded.Width,
	}
	w.err = w.savePatches(patches)
}

// BatchDone counts the groups so the grid file records them
func (w *PatchWriter) BatchDone(group, done, total int) {
	w.groups = group + 1
}

// Close writes the grid file and returns the first error encountered
func (w *PatchWriter) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.info.PatchSize == 0 {
		return nil
	}
	w.info.Groups = w.groups
	data, err := yaml.Marshal(w.info)
	if err != nil {
		return fmt.Errorf("error marshaling grid: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, GridFile), data, 0644); err != nil {
		return fmt.Errorf("error writing grid file: %w", err)
	}
	return nil
}

// Err returns the first error encountered while saving
func (w *PatchWriter) Err() error {
	return w.err
}

func (w *PatchWriter) savePatches(patches []*models.Tensor) error {
	imageDir := filepath.Join(w.dir, patchImageDir)
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}

	for i, p := range patches {
		if err := savePatchImage(p, filepath.Join(imageDir, fmt.Sprintf("%03d.png", i))); err != nil {
			return fmt.Errorf("failed to save patch %d: %w", i, err)
		}
	}

	file, err := os.Create(filepath.Join(w.dir, PatchDumpFile))
	if err != nil {
		return fmt.Errorf("failed to create patch dump: %w", err)
	}
	defer file.Close()
	if err := WritePatches(file, patches); err != nil {
		return err
	}
	return file.Close()
}

func savePatchImage(p *models.Tensor, filename string) error {
	frame, err := codec.FromModelDomain(p)
	if err != nil {
		return err
	}
	img, err := codec.FrameToImage(frame)
	if err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return err
	}
	return file.Close()
}

// dumpHeader precedes the samples in a patch dump. All patches share one shape.
type dumpHeader struct {
	Count    uint32
	Height   uint32
	Width    uint32
	Channels uint32
}

// WritePatches writes patches as zstd-compressed little-endian float32
// samples behind a small header. All patches must share one shape.
func WritePatches(out io.Writer, patches []*models.Tensor) error {
	var hdr dumpHeader
	hdr.Count = uint32(len(patches))
	if len(patches) > 0 {
		s := patches[0].Shape
		hdr.Height, hdr.Width, hdr.Channels = uint32(s.Height), uint32(s.Width), uint32(s.Channels)
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := binary.Write(enc, binary.LittleEndian, hdr); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write dump header: %w", err)
	}
	for i, p := range patches {
		if p.Shape != patches[0].Shape {
			enc.Close()
			return &models.ShapeMismatchError{Index: i, Got: p.Shape, Want: patches[0].Shape}
		}
		if err := binary.Write(enc, binary.LittleEndian, p.Pix); err != nil {
			enc.Close()
			return fmt.Errorf("failed to write patch %d: %w", i, err)
		}
	}
	return enc.Close()
}

// ReadPatches reads a dump written by WritePatches
func ReadPatches(in io.Reader) ([]*models.Tensor, error) {
	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	var hdr dumpHeader
	if err := binary.Read(dec, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to read dump header: %w", err)
	}
	patches := make([]*models.Tensor, hdr.Count)
	for i := range patches {
		p := models.NewTensor(int(hdr.Height), int(hdr.Width), int(hdr.Channels))
		if err := binary.Read(dec, binary.LittleEndian, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read patch %d: %w", i, err)
		}
		patches[i] = p
	}
	return patches, nil
}

// LoadPatches reads the patch dump and grid saved in dir
func LoadPatches(dir string) ([]*models.Tensor, GridInfo, error) {
	var info GridInfo
	data, err := os.ReadFile(filepath.Join(dir, GridFile))
	if err != nil {
		return nil, info, fmt.Errorf("error reading grid file: %w", err)
	}
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, info, fmt.Errorf("error parsing grid file: %w", err)
	}

	file, err := os.Open(filepath.Join(dir, PatchDumpFile))
	if err != nil {
		return nil, info, err
	}
	defer file.Close()
	patches, err := ReadPatches(file)
	return patches, info, err
}
