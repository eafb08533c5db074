// Package export renders an occupancy snapshot as a spreadsheet.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/garyellow/osvita-occupancy/internal/occupancy"
)

const (
	// SheetName is the worksheet holding the grid.
	SheetName = "Зайнятість"

	// ContentType is the MIME type of the produced workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	minSlots = 7
)

// Filename returns the download name for date.
func Filename(date string) string {
	return fmt.Sprintf("occupancy_%s.xlsx", date)
}

// CellText renders one occupied slot as "groups (instructor)".
func CellText(c occupancy.Cell) string {
	if c.Instructor == "" {
		return c.Label()
	}
	return fmt.Sprintf("%s (%s)", c.Label(), c.Instructor)
}

// slotCount is at least minSlots and grows to the largest occupied slot.
func slotCount(rooms occupancy.Snapshot) int {
	n := minSlots
	for _, r := range rooms {
		for s := range r.Slots {
			n = max(n, s)
		}
	}
	return n
}

// WriteXLSX writes rooms as one row per room and one column per pair.
func WriteXLSX(w io.Writer, rooms occupancy.Snapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	slots := slotCount(rooms)
	lastCol := colName(slots)

	_ = f.SetColWidth(SheetName, "A", "A", 14)
	_ = f.SetColWidth(SheetName, "B", lastCol, 28)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]any, 0, slots+1)
	header = append(header, "Аудиторія")
	for i := 1; i <= slots; i++ {
		header = append(header, fmt.Sprintf("%d пара", i))
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	_ = f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle)

	for i, room := range rooms {
		row := make([]any, 0, slots+1)
		row = append(row, room.Name)
		for s := 1; s <= slots; s++ {
			if c, ok := room.Slots[s]; ok {
				row = append(row, CellText(c))
			} else {
				row = append(row, "")
			}
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, start, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}
