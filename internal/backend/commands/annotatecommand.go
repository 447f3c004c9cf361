package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"
	"sync"

	_ "image/gif"
	_ "image/png"

	"github.com/jo-hoe/photostamp/internal/backend/commandstructure"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth = 1280
	DefaultFontSize = 18
	DefaultPadding  = 8
	DefaultMargin   = 10
	DefaultQuality  = 90
	DefaultOpacity  = 0.6
	// lineSpacing is added to the font size to get the caption line height
	lineSpacing = 4
)

// AnnotateParams represents typed parameters for the annotate command
type AnnotateParams struct {
	MaxWidth int
	FontSize int
	Padding  int
	Margin   int
	Quality  int
	Opacity  float64
}

// DefaultAnnotateParams returns the standard caption layout.
func DefaultAnnotateParams() AnnotateParams {
	return AnnotateParams{
		MaxWidth: DefaultMaxWidth,
		FontSize: DefaultFontSize,
		Padding:  DefaultPadding,
		Margin:   DefaultMargin,
		Quality:  DefaultQuality,
		Opacity:  DefaultOpacity,
	}
}

// LineHeight is the vertical distance between caption baselines.
func (p AnnotateParams) LineHeight() int {
	return p.FontSize + lineSpacing
}

// Validate checks that every parameter is in range.
func (p AnnotateParams) Validate() error {
	if p.MaxWidth <= 0 {
		return fmt.Errorf("maxWidth must be positive, got %d", p.MaxWidth)
	}
	if p.FontSize <= 0 {
		return fmt.Errorf("fontSize must be positive, got %d", p.FontSize)
	}
	if p.Padding < 0 {
		return fmt.Errorf("padding must not be negative, got %d", p.Padding)
	}
	if p.Margin < 0 {
		return fmt.Errorf("margin must not be negative, got %d", p.Margin)
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", p.Quality)
	}
	if p.Opacity < 0 || p.Opacity > 1 {
		return fmt.Errorf("opacity must be between 0 and 1, got %v", p.Opacity)
	}
	return nil
}

// NewAnnotateParamsFromMap creates AnnotateParams from a generic map, keeping defaults for missing keys.
func NewAnnotateParamsFromMap(params map[string]any) (*AnnotateParams, error) {
	defaults := DefaultAnnotateParams()
	p := AnnotateParams{
		MaxWidth: commandstructure.GetIntParam(params, "maxWidth", defaults.MaxWidth),
		FontSize: commandstructure.GetIntParam(params, "fontSize", defaults.FontSize),
		Padding:  commandstructure.GetIntParam(params, "padding", defaults.Padding),
		Margin:   commandstructure.GetIntParam(params, "margin", defaults.Margin),
		Quality:  commandstructure.GetIntParam(params, "quality", defaults.Quality),
		Opacity:  commandstructure.GetFloatParam(params, "opacity", defaults.Opacity),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// AnnotateCommand scales an image down to a maximum width, stamps a caption box in the
// bottom-left corner and re-encodes the result as JPEG.
type AnnotateCommand struct {
	name   string
	params *AnnotateParams
	lines  []string
}

// NewAnnotateCommand creates an annotate command from configuration parameters.
// An optional "lines" list provides a fixed caption.
func NewAnnotateCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewAnnotateParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	var lines []string
	if raw, ok := params["lines"].([]any); ok {
		for i, item := range raw {
			line, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("lines[%d] must be a string", i)
			}
			lines = append(lines, line)
		}
	}

	return &AnnotateCommand{
		name:   "AnnotateCommand",
		params: typedParams,
		lines:  lines,
	}, nil
}

// NewAnnotateCommandWithParams creates an annotate command for one caption.
func NewAnnotateCommandWithParams(params AnnotateParams, lines []string) (*AnnotateCommand, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	captured := make([]string, len(lines))
	copy(captured, lines)

	return &AnnotateCommand{
		name:   "AnnotateCommand",
		params: &params,
		lines:  captured,
	}, nil
}

// Name returns the command name
func (c *AnnotateCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *AnnotateCommand) GetParams() *AnnotateParams {
	return c.params
}

// GetLines returns the caption lines
func (c *AnnotateCommand) GetLines() []string {
	return c.lines
}

// Execute annotates the image. Input that cannot be decoded is returned unchanged.
func (c *AnnotateCommand) Execute(imageData []byte) ([]byte, error) {
	slog.Debug("AnnotateCommand: decoding image",
		"input_size_bytes", len(imageData),
		"line_count", len(c.lines))

	src, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		slog.Warn("AnnotateCommand: failed to decode image, returning original", "error", err)
		return imageData, nil
	}
	originalWidth := src.Bounds().Dx()
	originalHeight := src.Bounds().Dy()
	if originalWidth == 0 || originalHeight == 0 {
		slog.Warn("AnnotateCommand: image has no pixels, returning original")
		return imageData, nil
	}

	width, height := ScaledSize(originalWidth, originalHeight, c.params.MaxWidth)
	slog.Debug("AnnotateCommand: scaling image",
		"format", format,
		"original_width", originalWidth,
		"original_height", originalHeight,
		"target_width", width,
		"target_height", height)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == originalWidth && height == originalHeight {
		xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}

	if len(c.lines) > 0 {
		face, err := newCaptionFace(c.params.FontSize)
		if err != nil {
			slog.Error("AnnotateCommand: failed to load caption font", "error", err)
			return nil, fmt.Errorf("failed to load caption font: %w", err)
		}
		defer func() {
			_ = face.Close()
		}()

		box := captionBox(dst.Bounds(), MeasureLines(face, c.lines), len(c.lines), *c.params)
		darkenRect(dst, box, c.params.Opacity)
		drawCaption(dst, face, box, c.lines, *c.params)
	}

	var buf bytes.Buffer
	buf.Grow(width * height / 4)
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.params.Quality}); err != nil {
		slog.Error("AnnotateCommand: failed to encode image", "error", err)
		return nil, fmt.Errorf("failed to encode annotated JPEG image: %w", err)
	}

	slog.Debug("AnnotateCommand: annotation complete",
		"output_size_bytes", buf.Len())
	return buf.Bytes(), nil
}

// ScaledSize fits width into maxWidth while preserving the aspect ratio; images are never enlarged.
func ScaledSize(width, height, maxWidth int) (int, int) {
	scale := math.Min(1, float64(maxWidth)/float64(width))
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if w > maxWidth {
		w = maxWidth
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// MeasureLines returns the advance width of the widest line in whole pixels.
func MeasureLines(face font.Face, lines []string) int {
	widest := 0
	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > widest {
			widest = w
		}
	}
	return widest
}

// CaptionBox returns the rectangle the caption for lines occupies on an image with the given bounds.
// The box is anchored Margin pixels from the left and bottom edges. It is empty when there are no lines.
func CaptionBox(bounds image.Rectangle, lines []string, params AnnotateParams) (image.Rectangle, error) {
	if len(lines) == 0 {
		return image.Rectangle{}, nil
	}
	face, err := newCaptionFace(params.FontSize)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to load caption font: %w", err)
	}
	defer func() {
		_ = face.Close()
	}()
	return captionBox(bounds, MeasureLines(face, lines), len(lines), params), nil
}

func captionBox(bounds image.Rectangle, textWidth, lineCount int, params AnnotateParams) image.Rectangle {
	if lineCount <= 0 {
		return image.Rectangle{}
	}
	boxWidth := textWidth + params.Padding*2
	boxHeight := params.LineHeight()*lineCount + params.Padding*2
	x := bounds.Min.X + params.Margin
	bottom := bounds.Max.Y - params.Margin
	return image.Rect(x, bottom-boxHeight, x+boxWidth, bottom)
}

var (
	captionFontOnce sync.Once
	captionFont     *opentype.Font
	captionFontErr  error
)

// newCaptionFace returns a fresh face; faces are not safe for concurrent use.
func newCaptionFace(size int) (font.Face, error) {
	captionFontOnce.Do(func() {
		captionFont, captionFontErr = opentype.Parse(goregular.TTF)
	})
	if captionFontErr != nil {
		return nil, captionFontErr
	}
	return opentype.NewFace(captionFont, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// darkenRect composites black at the given opacity over the pixels inside rect.
func darkenRect(dst *image.RGBA, rect image.Rectangle, opacity float64) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	keep := 1 - opacity
	parallelFor(rect.Dy(), func(row int) {
		y := rect.Min.Y + row
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := dst.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: scaleChannel(c.R, keep),
				G: scaleChannel(c.G, keep),
				B: scaleChannel(c.B, keep),
				A: c.A + uint8(float64(255-c.A)*opacity+0.5),
			})
		}
	})
}

func scaleChannel(v uint8, factor float64) uint8 {
	return uint8(float64(v)*factor + 0.5)
}

// drawCaption writes each line in white, top to bottom, inside box.
func drawCaption(dst *image.RGBA, face font.Face, box image.Rectangle, lines []string, params AnnotateParams) {
	descent := face.Metrics().Descent
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
	}
	x := box.Min.X + params.Padding
	for i, line := range lines {
		// bottom of the line box, the text sits on it with its descenders
		bottom := box.Min.Y + params.Padding + params.LineHeight()*(i+1) - lineSpacing
		drawer.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(bottom) - descent}
		drawer.DrawString(line)
	}
}

func init() {
	// Register the command in the default registry
	if err := commandstructure.DefaultRegistry.Register("AnnotateCommand", NewAnnotateCommand); err != nil {
		panic(fmt.Sprintf("failed to register AnnotateCommand: %v", err))
	}
}
