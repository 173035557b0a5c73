package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/xuri/excelize/v2"
)

// HistorySheet 工作表名
const HistorySheet = "Health Data"

// HistoryHeader 导出表头
var HistoryHeader = []string{
	"Date",
	"Time",
	"Temperature (°C)",
	"Heart Rate (BPM)",
	"Muscle Activity",
	"ECG",
	"Lead Off",
	"Request",
	"Fall Detected",
	"Fall Severity",
	"Alert Status",
}

var historyColumnWidths = []float64{12, 10, 18, 18, 16, 10, 10, 22, 14, 14, 14}

// FileName 导出文件名；病人编号中字母数字和 . _ - 以外的字符替换为 _
func FileName(patientID string, now time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, patientID)
	return fmt.Sprintf("health-data-%s-%s.xlsx", safe, now.UTC().Format("2006-01-02"))
}

// WriteXLSX 把读数写成 xlsx（每条读数一行，按输入顺序），时间按 loc 显示
func WriteXLSX(w io.Writer, readings []models.VitalReading, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(HistorySheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range HistoryHeader {
		if err := setCellValue(f, col+1, 1, header); err != nil {
			return fmt.Errorf("failed to set header cell: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(HistorySheet, name, name, historyColumnWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	last, _ := excelize.ColumnNumberToName(len(HistoryHeader))
	if err := f.SetCellStyle(HistorySheet, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, r := range readings {
		row := i + 2 // 第1行是表头
		ts := r.Timestamp.In(loc)
		values := []interface{}{
			ts.Format("2006-01-02"),
			ts.Format("15:04:05"),
			r.BodyTemperature,
			r.HeartRate,
			nil,
			nil,
			nil,
			strings.Join(r.FlexRequests.Active(), ", "),
			yesNo(r.FallDetected),
			string(r.FallSeverity),
			r.Tier.String(),
		}
		if r.MuscleActivity != nil {
			values[4] = *r.MuscleActivity
		}
		if r.ECG != nil {
			values[5] = r.ECG.Value
			values[6] = yesNo(r.ECG.LeadOff)
		}

		for col, v := range values {
			if v == nil || v == "" {
				continue
			}
			if err := setCellValue(f, col+1, row, v); err != nil {
				return fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(HistorySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCellValue(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(HistorySheet, cell, value)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
