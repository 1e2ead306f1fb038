package reports

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"p9e.in/farmops/models"
)

const exportSheet = "Daily Reports"

// Export renders the farm's reports matching f as an XLSX workbook with one
// row per report and one column per question.
func (s *SubmissionService) Export(ctx context.Context, farmID uuid.UUID, farmName string, f ListFilter) (*bytes.Buffer, error) {
	reports, err := s.List(ctx, farmID, f)
	if err != nil {
		return nil, err
	}

	questions, err := listQuestions(s.db.WithContext(ctx), farmID)
	if err != nil {
		return nil, err
	}

	columns := exportColumns(questions, reports)
	file, err := buildWorkbook(farmName, columns, reports)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}
	defer file.Close()

	buffer, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buffer, nil
}

type exportColumn struct {
	id    uuid.UUID
	label string
}

// exportColumns lists the active questions in order, followed by deleted
// questions that still have answers in the exported reports.
func exportColumns(questions []models.Question, reports []models.DailyReport) []exportColumn {
	columns := make([]exportColumn, 0, len(questions))
	seen := make(map[uuid.UUID]bool, len(questions))
	for _, q := range questions {
		columns = append(columns, exportColumn{id: q.ID, label: q.Text})
		seen[q.ID] = true
	}
	for _, r := range reports {
		for _, a := range r.Answers {
			if seen[a.QuestionID] {
				continue
			}
			label := a.QuestionText
			if label == "" {
				label = a.QuestionID.String()
			}
			columns = append(columns, exportColumn{id: a.QuestionID, label: label + " (removed)"})
			seen[a.QuestionID] = true
		}
	}
	return columns
}

func buildWorkbook(farmName string, columns []exportColumn, reports []models.DailyReport) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	title := "Daily Reports"
	if farmName != "" {
		title = farmName + " - Daily Reports"
	}
	f.SetCellValue(exportSheet, "A1", title)
	f.SetCellStyle(exportSheet, "A1", "A1", titleStyle)
	f.SetCellValue(exportSheet, "A2", fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04:05")))

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#4472C4"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})

	headers := []string{"Reference date", "Submitted at", "Submitted by"}
	for _, c := range columns {
		headers = append(headers, c.label)
	}
	const headerRow = 4
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		f.SetCellValue(exportSheet, cell, h)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	f.SetColWidth(exportSheet, "A", last, 22)

	for r, report := range reports {
		row := headerRow + 1 + r
		values := []interface{}{
			report.ReferenceDate.String(),
			report.SubmittedAt.Format("2006-01-02 15:04:05"),
			report.UserName,
		}
		byQuestion := make(map[uuid.UUID]models.ReportAnswer, len(report.Answers))
		for _, a := range report.Answers {
			byQuestion[a.QuestionID] = a
		}
		for _, c := range columns {
			a, ok := byQuestion[c.id]
			if !ok {
				values = append(values, "")
				continue
			}
			values = append(values, answerCell(a))
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}
	return f, nil
}

func answerCell(a models.ReportAnswer) interface{} {
	switch {
	case a.AnswerText != nil:
		return strings.TrimSpace(*a.AnswerText)
	case a.AnswerNumber != nil:
		return *a.AnswerNumber
	case a.AnswerDate != nil:
		return a.AnswerDate.String()
	case a.AnswerBoolean != nil:
		if *a.AnswerBoolean {
			return "Yes"
		}
		return "No"
	default:
		return ""
	}
}
