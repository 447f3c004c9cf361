package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"

	"github.com/jo-hoe/photostamp/internal/backend/commandstructure"

	"github.com/gabriel-vasile/mimetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
)

const (
	DefaultSVGFallbackWidth  = 1280
	DefaultSVGFallbackHeight = 960
)

// RasterizeCommand normalizes input so it can be annotated: SVG documents are rendered to PNG and
// raster images with transparency are flattened onto white. Opaque raster input and anything
// that cannot be decoded pass through untouched.
type RasterizeCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewRasterizeCommand creates a new rasterize command
func NewRasterizeCommand(params map[string]any) (commandstructure.Command, error) {
	// Fallback dimensions are used only when the SVG lacks an explicit size
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", DefaultSVGFallbackWidth)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", DefaultSVGFallbackHeight)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg fallback size must be positive, got %dx%d", w, h)
	}

	return &RasterizeCommand{
		name:              "RasterizeCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
	}, nil
}

// Name returns the command name
func (c *RasterizeCommand) Name() string {
	return c.name
}

func (c *RasterizeCommand) Execute(imageData []byte) ([]byte, error) {
	mime := mimetype.Detect(imageData)
	slog.Debug("RasterizeCommand: start",
		"input_size_bytes", len(imageData),
		"mime", mime.String())

	if mime.Is("image/svg+xml") {
		return c.convertSVG(imageData)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		// annotation decides what to do with undecodable input
		slog.Debug("RasterizeCommand: input is not a decodable raster image; passing through", "error", err)
		return imageData, nil
	}
	if !hasTransparency(img) {
		slog.Debug("RasterizeCommand: opaque raster image; passing through", "format", format)
		return imageData, nil
	}

	slog.Debug("RasterizeCommand: flattening transparent image",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	dst := createTargetCanvas(img.Bounds().Dx(), img.Bounds().Dy(), color.RGBA{255, 255, 255, 255})
	xdraw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, xdraw.Over)
	return encodePNG(dst)
}

func (c *RasterizeCommand) convertSVG(imageData []byte) ([]byte, error) {
	w, h, ok := parseSvgExplicitSize(imageData)
	if ok {
		slog.Debug("RasterizeCommand: SVG has explicit size", "width", w, "height", h)
	} else {
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
		slog.Debug("RasterizeCommand: SVG lacks explicit size; using fallback", "width", w, "height", h)
	}

	out, err := renderSVGToPNG(imageData, w, h)
	if err != nil {
		slog.Error("RasterizeCommand: failed to render SVG", "error", err)
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	slog.Debug("RasterizeCommand: SVG render complete", "output_size_bytes", len(out))
	return out, nil
}

func init() {
	// Register the command in the default registry
	if err := commandstructure.DefaultRegistry.Register("RasterizeCommand", NewRasterizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register RasterizeCommand: %v", err))
	}
}

// hasTransparency reports whether any pixel of img is not fully opaque.
func hasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return false
	}
	b := img.Bounds()
	return parallelForStop(b.Dy(), func(row int) bool {
		y := b.Min.Y + row
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	})
}

// createTargetCanvas returns an RGBA canvas filled with bg.
func createTargetCanvas(w, h int, bg color.RGBA) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: bg}, image.Point{}, xdraw.Src)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(img.Bounds().Dx() * img.Bounds().Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG image: %w", err)
	}
	return buf.Bytes(), nil
}

// parseSvgExplicitSize attempts to extract width and height attributes from the SVG root element.
// viewBox is not treated as a pixel size.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr extracts the leading integer of a quoted attribute value (e.g. width="123px").
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := strings.Index(tag, " "+attr+"=")
	if pos < 0 {
		return 0, false
	}
	rest := tag[pos+len(attr)+2:]
	if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
		return 0, false
	}
	quote := rest[0]
	rest = rest[1:]
	if end := strings.IndexByte(rest, quote); end >= 0 {
		rest = rest[:end]
	}

	num := 0
	found := false
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if ch < '0' || ch > '9' {
			break
		}
		found = true
		num = num*10 + int(ch-'0')
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// renderSVGToPNG renders an SVG document onto a white canvas of the given size.
func renderSVGToPNG(svgData []byte, targetW, targetH int) ([]byte, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := createTargetCanvas(targetW, targetH, color.RGBA{255, 255, 255, 255})
	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	return encodePNG(dst)
}
