package report

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"phx_market/internal/analytics"
	"phx_market/internal/domain"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
)

// ErrNotEnoughData is returned when fewer than 2 samples are available.
var ErrNotEnoughData = errors.New("insufficient data for chart")

// ChartOptions controls chart rendering. Zero values fall back to defaults.
type ChartOptions struct {
	Width    int
	Height   int
	BasePeg  decimal.Decimal
	MAWindow int
}

var (
	colorBackground = color.NRGBA{R: 0x0D, G: 0x11, B: 0x17, A: 0xFF}
	colorGrid       = color.NRGBA{R: 0x21, G: 0x26, B: 0x2D, A: 0xFF}
	colorPrice      = color.NRGBA{R: 0x58, G: 0xA6, B: 0xFF, A: 0xFF}
	colorPeg        = color.NRGBA{R: 0x8B, G: 0x94, B: 0x9E, A: 0xFF}
	colorMA         = color.NRGBA{R: 0x00, G: 0xFF, B: 0x88, A: 0xFF}
)

// supersample draws at a multiple of the target size; the downscale smooths the lines.
const supersample = 2

// MaxChartSide caps either chart dimension in pixels.
const MaxChartSide = 4000

func (o ChartOptions) withDefaults() ChartOptions {
	if o.Width <= 0 {
		o.Width = 1200
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	o.Width = min(o.Width, MaxChartSide)
	o.Height = min(o.Height, MaxChartSide)
	if o.BasePeg.IsZero() {
		o.BasePeg = decimal.NewFromInt(100)
	}
	if o.MAWindow <= 0 {
		o.MAWindow = 5
	}
	return o
}

// RenderChart draws the price history and saves it to path. The format
// follows the file extension.
func RenderChart(samples []domain.PriceSample, path string, opts ChartOptions) error {
	img, err := drawChart(samples, opts)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}

// EncodeChart draws the price history as PNG into w.
func EncodeChart(w io.Writer, samples []domain.PriceSample, opts ChartOptions) error {
	img, err := drawChart(samples, opts)
	if err != nil {
		return err
	}
	return imaging.Encode(w, img, imaging.PNG)
}

func drawChart(samples []domain.PriceSample, opts ChartOptions) (*image.NRGBA, error) {
	if len(samples) < 2 {
		return nil, ErrNotEnoughData
	}
	opts = opts.withDefaults()

	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price.InexactFloat64()
	}
	peg := opts.BasePeg.InexactFloat64()

	lo, hi := peg, peg
	for _, p := range prices {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	margin := (hi - lo) * 0.1
	if margin == 0 {
		margin = 1
	}
	lo -= margin
	hi += margin

	w, h := opts.Width*supersample, opts.Height*supersample
	pad := 20 * supersample
	c := &canvas{
		img:  imaging.New(w, h, colorBackground),
		left: pad, right: w - pad,
		top: pad, bottom: h - pad,
		lo: lo, hi: hi,
		n: len(prices),
	}

	for i := 0; i <= 4; i++ {
		y := c.top + (c.bottom-c.top)*i/4
		c.line(c.left, y, c.right, y, colorGrid, 1, 0)
	}

	pegY := c.y(peg)
	c.line(c.left, pegY, c.right, pegY, colorPeg, supersample, 12*supersample)

	if len(prices) > opts.MAWindow {
		c.series(analytics.MovingAverage(prices, opts.MAWindow), colorMA, supersample)
	}
	c.series(prices, colorPrice, 2*supersample)

	return imaging.Resize(c.img, opts.Width, opts.Height, imaging.Lanczos), nil
}

type canvas struct {
	img                      *image.NRGBA
	left, right, top, bottom int
	lo, hi                   float64
	n                        int
}

func (c *canvas) x(i int) int {
	if c.n < 2 {
		return c.left
	}
	return c.left + (c.right-c.left)*i/(c.n-1)
}

func (c *canvas) y(v float64) int {
	frac := (v - c.lo) / (c.hi - c.lo)
	return c.bottom - int(math.Round(frac*float64(c.bottom-c.top)))
}

func (c *canvas) series(values []float64, col color.NRGBA, thickness int) {
	for i := 1; i < len(values); i++ {
		c.line(c.x(i-1), c.y(values[i-1]), c.x(i), c.y(values[i]), col, thickness, 0)
	}
}

// line draws a Bresenham line. dash > 0 alternates dash-long segments and gaps.
func (c *canvas) line(x0, y0, x1, y1 int, col color.NRGBA, thickness, dash int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for step := 0; ; step++ {
		if dash == 0 || (step/dash)%2 == 0 {
			c.dot(x0, y0, col, thickness)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *canvas) dot(x, y int, col color.NRGBA, thickness int) {
	r := thickness / 2
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if image.Pt(xx, yy).In(c.img.Rect) {
				c.img.SetNRGBA(xx, yy, col)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
