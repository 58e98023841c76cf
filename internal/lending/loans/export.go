package loans

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Loans"

var exportHeaders = []any{
	"ID", "Key", "Status", "Person", "National ID", "Tag", "Model",
	"Loaned at", "Due at", "Returned at", "Accessories", "Pickup notes", "Return notes",
}

// Export writes the listing as an .xlsx workbook. Times are rendered in the
// configured zone.
func (s *Service) Export(ctx context.Context, f ListFilter, w io.Writer) error {
	list, err := s.ListLoans(ctx, f)
	if err != nil {
		return err
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := file.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return err
	}
	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(exportHeaders))
	if err != nil {
		return err
	}
	if err := file.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	const layout = "2006-01-02 15:04"
	for i, l := range list {
		returned := ""
		if l.ReturnedAt != nil {
			returned = l.ReturnedAt.In(s.loc).Format(layout)
		}
		row := []any{
			l.ID, l.LoanULID, l.Status, l.Person.Name, l.Person.NationalID, l.Equipment.Tag, l.Equipment.Model,
			l.LoanedAt.In(s.loc).Format(layout), l.DueAt.In(s.loc).Format(layout), returned,
			strings.Join(l.Accessories, ", "), l.PickupNotes, l.ReturnNotes,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := file.SetColWidth(exportSheet, "A", "C", 10); err != nil {
		return err
	}
	if err := file.SetColWidth(exportSheet, "D", lastCol, 22); err != nil {
		return err
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
