package xopp

import (
	"encoding/xml"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/Lllllllleong/xoppsave/internal/document"
)

const (
	fileVersion = "4"
	title       = "Xournal++ document - see https://xournalpp.github.io/"
)

type xmlXournal struct {
	XMLName     xml.Name  `xml:"xournal"`
	Creator     string    `xml:"creator,attr"`
	FileVersion string    `xml:"fileversion,attr"`
	Title       string    `xml:"title"`
	Preview     string    `xml:"preview,omitempty"`
	Pages       []xmlPage `xml:"page"`
}

type xmlPage struct {
	Width      string        `xml:"width,attr"`
	Height     string        `xml:"height,attr"`
	Background xmlBackground `xml:"background"`
	Layers     []xmlLayer    `xml:"layer"`
}

type xmlBackground struct {
	Type     string `xml:"type,attr"`
	Color    string `xml:"color,attr,omitempty"`
	Style    string `xml:"style,attr,omitempty"`
	Domain   string `xml:"domain,attr,omitempty"`
	Filename string `xml:"filename,attr,omitempty"`
	PageNo   int    `xml:"pageno,attr,omitempty"`
}

type xmlLayer struct {
	Strokes []xmlStroke `xml:"stroke"`
}

type xmlStroke struct {
	Tool   string `xml:"tool,attr"`
	Color  string `xml:"color,attr"`
	Width  string `xml:"width,attr"`
	Coords string `xml:",chardata"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func formatColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func parseColor(s string) (color.RGBA, error) {
	var c color.RGBA
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 6:
		s += "ff"
	case 8:
	default:
		return c, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func formatCoords(points []document.Point) string {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatFloat(p.X))
		b.WriteByte(' ')
		b.WriteString(formatFloat(p.Y))
	}
	return b.String()
}

func parseCoords(s string) ([]document.Point, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd number of stroke coordinates: %d", len(fields))
	}
	points := make([]document.Point, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		x, err := parseFloat(fields[i])
		if err != nil {
			return nil, err
		}
		y, err := parseFloat(fields[i+1])
		if err != nil {
			return nil, err
		}
		points = append(points, document.Point{X: x, Y: y})
	}
	return points, nil
}
