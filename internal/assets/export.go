package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Assets"

var exportHeaders = []any{"Code", "Name", "Type", "Serial no.", "Description", "Purchased", "Assignee", "Assignee email", "Return date", "Lost", "Overdue", "Added by"}

// PDFRenderer turns an HTML document into a PDF, implemented by report.Client.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// DocumentTemplates executes a named template into a writer.
type DocumentTemplates interface {
	Execute(w io.Writer, name string, data any) error
}

type pdfDocument struct {
	Filter      Filter
	GeneratedAt time.Time
	Assets      []Record
}

// WriteXLSX renders records as a single sheet workbook.
func WriteXLSX(w io.Writer, records []Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return err
	}
	for i, rec := range records {
		var assignee, email string
		if rec.Assignee != nil {
			assignee, email = rec.Assignee.Name, rec.Assignee.Email
		}
		row := []any{rec.Code, rec.Name, rec.Type, rec.SerialNo, rec.Description, rec.PurchasedDate, assignee, email, rec.ReturnDate, yesNo(rec.Lost), yesNo(rec.ReturnDatePast), rec.AddedBy.Name}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

// RenderPDF executes the register template and converts it to PDF.
func RenderPDF(ctx context.Context, templates DocumentTemplates, renderer PDFRenderer, filter Filter, records []Record, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	doc := pdfDocument{Filter: filter, GeneratedAt: now, Assets: records}
	if err := templates.Execute(&buf, "pages/assets_pdf.html", doc); err != nil {
		return nil, fmt.Errorf("assets: pdf template: %w", err)
	}
	return renderer.RenderHTML(ctx, buf.Bytes())
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return ""
}
