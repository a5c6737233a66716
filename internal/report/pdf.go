package report

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/mzyy94/ippink/internal/ink"
)

// Entry is one printer's section of the report.
type Entry struct {
	Printer    string
	URI        string
	Cartridges []ink.Cartridge // empty when the printer could not be queried
}

type rgb struct{ r, g, b int }

// barColors maps marker color tokens to bar fill colors.
var barColors = map[string]rgb{
	"black":         {0, 0, 0},
	"photo-black":   {30, 30, 30},
	"gray":          {128, 128, 128},
	"photo-gray":    {170, 170, 170},
	"cyan":          {0, 174, 239},
	"light-cyan":    {120, 215, 245},
	"magenta":       {236, 0, 140},
	"light-magenta": {245, 130, 195},
	"yellow":        {255, 221, 0},
}

var fallbackColor = rgb{90, 110, 140}

// Page layout, in mm.
const (
	marginMM  = 15.0
	labelMM   = 45.0
	barMM     = 100.0
	rowMM     = 7.0
	pageEndMM = 280.0
)

// WritePDF renders the report and writes it to outputPath.
func WritePDF(entries []Entry, generatedAt time.Time, outputPath string) error {
	data, err := GeneratePDF(entries, generatedAt)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}

// GeneratePDF renders an ink level report for the given printers in memory.
// Each cartridge is drawn as a bar proportional to its level.
func GeneratePDF(entries []Entry, generatedAt time.Time) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no printers to report")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Ink level report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Ink level report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 5, "Generated "+generatedAt.Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, e := range entries {
		need := 14 + rowMM*float64(max(1, len(e.Cartridges)))
		if pdf.GetY()+need > pageEndMM {
			pdf.AddPage()
		}
		writeEntry(pdf, e)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("generate PDF: %w", err)
	}
	return out.Bytes(), nil
}

func writeEntry(pdf *fpdf.Fpdf, e Entry) {
	name := e.Printer
	if name == "" {
		name = e.URI
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 12)
	title := asciiOnly(name)
	if len(e.Cartridges) > 0 {
		title += "  [" + ink.Summary(e.Cartridges).String() + "]"
	}
	pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 4, asciiOnly(e.URI), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	if len(e.Cartridges) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, rowMM, "unavailable", "", 1, "L", false, 0, "")
		pdf.Ln(4)
		return
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, c := range e.Cartridges {
		y := pdf.GetY()
		label := c.Color
		if c.Name != nil && *c.Name != "" {
			label = *c.Name
		}
		pdf.CellFormat(labelMM, rowMM, asciiOnly(label), "", 0, "L", false, 0, "")

		x := marginMM + labelMM
		col, ok := barColors[c.Color]
		if !ok {
			col = fallbackColor
		}
		pdf.SetDrawColor(160, 160, 160)
		pdf.Rect(x, y+1.5, barMM, rowMM-3, "D")
		if c.Level > 0 {
			pdf.SetFillColor(col.r, col.g, col.b)
			pdf.Rect(x, y+1.5, barMM*float64(c.Level)/100, rowMM-3, "F")
		}

		pdf.SetXY(x+barMM+3, y)
		pdf.CellFormat(0, rowMM, fmt.Sprintf("%3d%%  %s", c.Level, c.Status), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

// asciiOnly replaces characters the PDF core fonts cannot render.
func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return '?'
		}
		return r
	}, s)
}
