package documents

import (
	"strconv"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// PaperSize names a supported page format.
type PaperSize string

const (
	PaperA4     PaperSize = "A4"
	PaperA5     PaperSize = "A5"
	PaperLetter PaperSize = "LETTER"
	PaperLegal  PaperSize = "LEGAL"
)

// paperInches maps sizes to portrait width and height in inches.
var paperInches = map[PaperSize][2]float64{
	PaperA4:     {8.27, 11.7},
	PaperA5:     {5.83, 8.27},
	PaperLetter: {8.5, 11},
	PaperLegal:  {8.5, 14},
}

const defaultMargin = 0.4

// Options controls page layout of a rendered PDF. Margins are in inches; nil margins
// take the default.
type Options struct {
	PaperSize       PaperSize `json:"paperSize" validate:"omitempty,oneof=A4 A5 LETTER LEGAL"`
	Landscape       bool      `json:"landscape"`
	MarginTop       *float64  `json:"marginTop" validate:"omitempty,gte=0,lte=3"`
	MarginBottom    *float64  `json:"marginBottom" validate:"omitempty,gte=0,lte=3"`
	MarginLeft      *float64  `json:"marginLeft" validate:"omitempty,gte=0,lte=3"`
	MarginRight     *float64  `json:"marginRight" validate:"omitempty,gte=0,lte=3"`
	PrintBackground bool      `json:"printBackground"`
	Scale           float64   `json:"scale" validate:"omitempty,gte=0.1,lte=2"`
}

// DefaultOptions is A4 portrait with backgrounds, used by contracts and invoices.
func DefaultOptions() Options {
	return Options{PaperSize: PaperA4, PrintBackground: true, Scale: 1}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	return shared.Validate.Struct(o)
}

// FormFields encodes the options as Gotenberg Chromium form fields.
func (o Options) FormFields() map[string]string {
	size := o.PaperSize
	if size == "" {
		size = PaperA4
	}
	dims := paperInches[size]
	width, height := dims[0], dims[1]
	scale := o.Scale
	if scale == 0 {
		scale = 1
	}
	return map[string]string{
		"paperWidth":      formatFloat(width),
		"paperHeight":     formatFloat(height),
		"marginTop":       formatFloat(marginOrDefault(o.MarginTop)),
		"marginBottom":    formatFloat(marginOrDefault(o.MarginBottom)),
		"marginLeft":      formatFloat(marginOrDefault(o.MarginLeft)),
		"marginRight":     formatFloat(marginOrDefault(o.MarginRight)),
		"landscape":       strconv.FormatBool(o.Landscape),
		"printBackground": strconv.FormatBool(o.PrintBackground),
		"scale":           formatFloat(scale),
	}
}

func marginOrDefault(m *float64) float64 {
	if m == nil {
		return defaultMargin
	}
	return *m
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
