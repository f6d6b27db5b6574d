// Package export renders ledger snapshots as spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Proton-105/frostbank/internal/domain"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{"No", "User ID", "Balance", "Last random reward", "Last message reward", "Created at"}

// FileName returns the attachment name for a snapshot taken at at.
func FileName(at time.Time) string {
	return fmt.Sprintf("frostbank_balances_%s.xlsx", at.UTC().Format("20060102_150405"))
}

// Balances writes every account into a single-sheet workbook ordered by balance descending,
// then user id. User ids are written as text because snowflakes exceed float precision.
func Balances(sheet string, accounts []domain.Account) ([]byte, error) {
	if sheet == "" {
		sheet = "Balances"
	}

	rows := slices.Clone(accounts)
	slices.SortFunc(rows, func(a, b domain.Account) int {
		switch {
		case a.Balance > b.Balance:
			return -1
		case a.Balance < b.Balance:
			return 1
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		default:
			return 0
		}
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1E3A8A"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, acc := range rows {
		row := i + 2
		values := []any{
			i + 1,
			strconv.FormatInt(acc.UserID, 10),
			acc.Balance,
			formatTime(acc.LastRandomRewardAt),
			formatTime(acc.LastMessageRewardAt),
			acc.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 6)
	_ = f.SetColWidth(sheet, "B", "B", 22)
	_ = f.SetColWidth(sheet, "C", "C", 16)
	_ = f.SetColWidth(sheet, "D", "F", 24)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
