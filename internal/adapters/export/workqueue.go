// Package export renders case store views as spreadsheets.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"whalewatcher/pkg/domain"
)

// Sheet names of the work queue workbook.
const (
	QueueSheet = "Work Queue"
	GapsSheet  = "Open Gaps"
)

// ContentType is the media type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var queueHeader = []string{
	"Case ID", "Applicant", "Product", "Coverage", "Stage", "Stage Status",
	"Priority", "SLA Due", "Assigned To", "Completeness", "Open Gaps", "Blockers",
}

var gapsHeader = []string{
	"Gap ID", "Case ID", "Type", "Severity", "Priority", "Status", "Owning Team", "Due", "Description",
}

// WorkQueue writes cases, in the given order, and their open gaps to an XLSX workbook.
func WorkQueue(cases []domain.Case, gaps []domain.Gap) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(QueueSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(GapsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	openByCase := map[string]int{}
	var open []domain.Gap
	for _, g := range gaps {
		if g.Status == domain.GapClosed {
			continue
		}
		openByCase[g.CaseID]++
		open = append(open, g)
	}

	rows := make([][]any, 0, len(cases))
	for _, c := range cases {
		rows = append(rows, []any{
			c.ID,
			c.Applicant.Name,
			c.ProductType,
			c.CoverageAmount,
			fmt.Sprintf("%d/%d", c.Stage, domain.MaxStage),
			string(c.StageStatus),
			string(c.Priority),
			formatTime(c.SLADueAt),
			c.AssignedTo,
			c.CompletenessScore,
			openByCase[c.ID],
			strings.Join(c.Blockers, "; "),
		})
	}
	if err := writeSheet(f, QueueSheet, queueHeader, rows, headerStyle); err != nil {
		return nil, err
	}

	rows = rows[:0]
	for _, g := range open {
		due := ""
		if g.DueDate != nil {
			due = formatTime(*g.DueDate)
		}
		rows = append(rows, []any{
			g.ID, g.CaseID, string(g.Type), string(g.Severity), string(g.Priority),
			string(g.Status), g.OwningTeam, due, g.Description,
		})
	}
	if err := writeSheet(f, GapsSheet, gapsHeader, rows, headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
