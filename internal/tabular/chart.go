package tabular

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"gopkg.in/yaml.v3"

	"github.com/dverasc/datalens-backend/internal/logger"
)

const (
	chartWidth  = 800
	chartHeight = 600
	marginLeft  = 80.0
	marginRight = 40.0
	marginTop   = 50.0
	marginBot   = 70.0
	tickCount   = 5
)

// defaultPalette is used when no CHART_PALETTE_PATH file is configured.
var defaultPalette = []color.NRGBA{
	{R: 0x4C, G: 0x72, B: 0xB0, A: 0xFF},
	{R: 0xDD, G: 0x84, B: 0x52, A: 0xFF},
	{R: 0x55, G: 0xA8, B: 0x68, A: 0xFF},
	{R: 0xC4, G: 0x4E, B: 0x52, A: 0xFF},
}

// Renderer is the chart collaborator: pure given the same frame and axes, it
// renders a scatter plot of y against x and returns the PNG bytes.
type Renderer struct {
	log      *logger.Logger
	palette  []color.NRGBA
	fontFace font.Face
}

func NewRenderer(baseLog *logger.Logger) (*Renderer, error) {
	rendererLog := baseLog.With("service", "ChartRenderer")

	palette := defaultPalette
	palettePath := strings.TrimSpace(os.Getenv("CHART_PALETTE_PATH"))
	if palettePath != "" {
		rendererLog.Info("Loading chart palette...", "path", palettePath)
		loaded, err := loadPaletteFromFile(palettePath)
		if err != nil {
			return nil, fmt.Errorf("could not load chart palette: %w", err)
		}
		if len(loaded) == 0 {
			return nil, fmt.Errorf("chart palette is empty")
		}
		palette = loaded
	}

	var face font.Face = basicfont.Face7x13
	fontPath := strings.TrimSpace(os.Getenv("CHART_FONT"))
	if fontPath != "" {
		rendererLog.Info("Loading chart font", "font", fontPath)
		loaded, err := loadFontFace(fontPath, 14)
		if err != nil {
			return nil, fmt.Errorf("could not load chart font: %w", err)
		}
		face = loaded
	}

	return &Renderer{log: rendererLog, palette: palette, fontFace: face}, nil
}

// Render plots column y against column x. It fails when either column is
// missing from the frame or not numeric, and when the two columns have a
// different number of values.
func (r *Renderer) Render(frame *Frame, xColumn, yColumn string) ([]byte, error) {
	if !frame.HasColumn(xColumn) {
		return nil, fmt.Errorf("column %q not found", xColumn)
	}
	if !frame.HasColumn(yColumn) {
		return nil, fmt.Errorf("column %q not found", yColumn)
	}
	xs, err := frame.NumericColumn(xColumn)
	if err != nil {
		return nil, err
	}
	ys, err := frame.NumericColumn(yColumn)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 || len(ys) == 0 {
		return nil, fmt.Errorf("columns %q and %q have no data points", xColumn, yColumn)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("columns %q and %q have different lengths (%d vs %d)", xColumn, yColumn, len(xs), len(ys))
	}

	xMin, xMax := bounds(xs)
	yMin, yMax := bounds(ys)

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetFontFace(r.fontFace)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := float64(chartWidth) - marginLeft - marginRight
	plotH := float64(chartHeight) - marginTop - marginBot

	toX := func(v float64) float64 { return marginLeft + scale(v, xMin, xMax)*plotW }
	toY := func(v float64) float64 { return marginTop + (1-scale(v, yMin, yMax))*plotH }

	// Axes
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1.5)
	dc.DrawLine(marginLeft, marginTop, marginLeft, marginTop+plotH)
	dc.DrawLine(marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH)
	dc.Stroke()

	// Ticks and gridlines
	dc.SetLineWidth(1)
	for i := 0; i <= tickCount; i++ {
		frac := float64(i) / float64(tickCount)

		xv := xMin + frac*(xMax-xMin)
		px := marginLeft + frac*plotW
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.DrawLine(px, marginTop, px, marginTop+plotH)
		dc.Stroke()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(formatTick(xv), px, marginTop+plotH+16, 0.5, 0.5)

		yv := yMin + frac*(yMax-yMin)
		py := marginTop + (1-frac)*plotH
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.DrawLine(marginLeft, py, marginLeft+plotW, py)
		dc.Stroke()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(formatTick(yv), marginLeft-10, py, 1, 0.5)
	}

	// Points
	pointColor := r.palette[0]
	dc.SetColor(pointColor)
	for i := range xs {
		dc.DrawCircle(toX(xs[i]), toY(ys[i]), 3.5)
		dc.Fill()
	}

	// Labels
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.DrawStringAnchored(fmt.Sprintf("%s vs %s", yColumn, xColumn), marginLeft+plotW/2, marginTop/2, 0.5, 0.5)
	dc.DrawStringAnchored(xColumn, marginLeft+plotW/2, float64(chartHeight)-24, 0.5, 0.5)
	dc.DrawStringAnchored(yColumn, 24, marginTop-20, 0, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

func bounds(values []float64) (float64, float64) {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// scale maps v into [0,1] over [min,max]; degenerate ranges land mid-plot.
func scale(v, min, max float64) float64 {
	if max == min {
		return 0.5
	}
	return (v - min) / (max - min)
}

func formatTick(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

type paletteFile struct {
	Colors []string `yaml:"colors"`
}

func loadPaletteFromFile(path string) ([]color.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file error: %w", err)
	}
	var pf paletteFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("yaml unmarshal error: %w", err)
	}
	colors := make([]color.NRGBA, 0, len(pf.Colors))
	for _, hexStr := range pf.Colors {
		r, g, b, err := parseHexRGB(hexStr)
		if err != nil {
			return nil, fmt.Errorf("palette color %q: %w", hexStr, err)
		}
		colors = append(colors, color.NRGBA{R: r, G: g, B: b, A: 0xFF})
	}
	return colors, nil
}

func parseHexRGB(s string) (r, g, b uint8, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		s = s[1:]
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("expected 6 hex chars")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid hex")
	}
	return raw[0], raw[1], raw[2], nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
