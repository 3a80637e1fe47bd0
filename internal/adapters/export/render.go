package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

func renderCSV(sections []section) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, s := range sections {
		if err := w.WriteAll(s.rows()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

const xlsxSheet = "Export"

func renderXLSX(sections []section) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}
	line := 1
	write := func(values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		line++
		return f.SetSheetRow(xlsxSheet, cell, &row)
	}
	if err := write(header); err != nil {
		return nil, err
	}
	for _, s := range sections {
		for _, r := range s.rows() {
			if err := write(r); err != nil {
				return nil, err
			}
		}
	}
	if err := f.AutoFilter(xlsxSheet, fmt.Sprintf("A1:L%d", line-1), nil); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pdf column layouts in millimetres.
var (
	interactionCols = []pdfColumn{{"Type", 35}, {"Date", 25}, {"Risk", 15}, {"Next", 25}, {"Notes", 90}}
	actionCols      = []pdfColumn{{"Description", 85}, {"Start", 25}, {"End", 25}, {"Status", 55}}
)

type pdfColumn struct {
	title string
	width float64
}

func renderPDF(sections []section, generated time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Nina report", true)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Generated %s - page %d", generated.Format("2006-01-02 15:04"), pdf.PageNo()),
			"", 0, "C", false, 0, "")
	})

	for _, s := range sections {
		pdf.AddPage()
		ind := s.individual
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, tr(ind.Name), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s  |  %s  |  %s", ind.Email, ind.Role, ind.Axis)), "", 1, "L", false, 0, "")
		pdf.Ln(4)

		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, "Interactions", "", 1, "L", false, 0, "")
		tableHeader(pdf, interactionCols)
		pdf.SetFont("Helvetica", "", 9)
		if len(s.interactions) == 0 {
			pdf.CellFormat(0, 7, "No interactions recorded", "1", 1, "L", false, 0, "")
		}
		for _, it := range s.interactions {
			tableRow(pdf, tr, interactionCols, []string{
				string(it.Type), formatDate(it.Date), formatScore(it.RiskScore), formatDatePtr(it.NextDate), it.Notes,
			})
		}
		pdf.Ln(4)

		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, "Development plan", "", 1, "L", false, 0, "")
		tableHeader(pdf, actionCols)
		pdf.SetFont("Helvetica", "", 9)
		if len(s.actions) == 0 {
			pdf.CellFormat(0, 7, "No development actions recorded", "1", 1, "L", false, 0, "")
		}
		for _, a := range s.actions {
			tableRow(pdf, tr, actionCols, []string{
				a.Description, formatDate(a.StartDate), formatDate(a.EndDate), string(a.Status),
			})
		}
	}
	if len(sections) == 0 {
		pdf.AddPage()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableHeader(pdf *fpdf.Fpdf, cols []pdfColumn) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range cols {
		pdf.CellFormat(c.width, 7, c.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

// tableRow truncates long cells to the column width.
func tableRow(pdf *fpdf.Fpdf, tr func(string) string, cols []pdfColumn, values []string) {
	for i, c := range cols {
		text := tr(values[i])
		for text != "" && pdf.GetStringWidth(text) > c.width-2 {
			text = text[:len(text)-1]
		}
		pdf.CellFormat(c.width, 7, text, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}
