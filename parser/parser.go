package parser

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// priceRe matches digit groups of one to three digits joined by thousands
// separators with an optional two or three digit fractional part.
var priceRe = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2,3})?`)

// NumberFormat tells ParsePrice which separator marks thousands and which
// marks the decimal point. The price pattern accepts either character in
// either role, so the format is configured rather than guessed.
type NumberFormat struct {
	Name      string
	Thousands byte
	Decimal   byte
}

var (
	// FormatUS reads "1,234.56" as one thousand two hundred thirty-four.
	FormatUS = NumberFormat{Name: "us", Thousands: ',', Decimal: '.'}
	// FormatEU reads "1.234,56" as one thousand two hundred thirty-four.
	FormatEU = NumberFormat{Name: "eu", Thousands: '.', Decimal: ','}
)

// LookupNumberFormat resolves a configured format name.
func LookupNumberFormat(name string) (NumberFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "us":
		return FormatUS, nil
	case "eu":
		return FormatEU, nil
	default:
		return NumberFormat{}, fmt.Errorf("unknown number format %q", name)
	}
}

// ParsePrice extracts the first number in text. It returns NaN when the text
// holds no number.
func ParsePrice(text string, nf NumberFormat) float64 {
	match := priceRe.FindString(text)
	if match == "" {
		return math.NaN()
	}

	var b strings.Builder
	for i := 0; i < len(match); i++ {
		switch c := match[i]; c {
		case nf.Thousands:
		case nf.Decimal:
			b.WriteByte('.')
		default:
			b.WriteByte(c)
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Parse hands fetched markup to goquery.
func Parse(body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
