package reports

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	monthlySheetName  = "Monthly Summary"
	categorySheetName = "Category Summary"
)

// ExportSummaryExcel renders the monthly and category summaries of a book
// into a two sheet workbook. The caller owns the response headers and the
// final Write.
func ExportSummaryExcel(ctx context.Context, bookId int, fromDate models.DateOnly, toDate models.DateOnly) (*excelize.File, error) {
	monthly, err := GetMonthlySummary(ctx, bookId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	category, err := GetCategorySummary(ctx, bookId, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", monthlySheetName)
	if _, err := f.NewSheet(categorySheetName); err != nil {
		return nil, err
	}

	// Monthly sheet
	f.SetCellValue(monthlySheetName, "A1", "Year")
	f.SetCellValue(monthlySheetName, "B1", "Month")
	f.SetCellValue(monthlySheetName, "C1", "Type")
	f.SetCellValue(monthlySheetName, "D1", "TotalAmount")
	f.SetCellValue(monthlySheetName, "E1", "Count")
	f.SetCellValue(monthlySheetName, "F1", "PeriodStart")
	f.SetCellValue(monthlySheetName, "G1", "PeriodEnd")

	for i, p := range monthly.Periods {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(monthlySheetName, "A"+row, p.Year)
		f.SetCellValue(monthlySheetName, "B"+row, p.Month)
		f.SetCellValue(monthlySheetName, "C"+row, p.Type.String())
		f.SetCellValue(monthlySheetName, "D"+row, p.TotalAmount)
		f.SetCellValue(monthlySheetName, "E"+row, p.Count)
		f.SetCellValue(monthlySheetName, "F"+row, p.PeriodStart.String())
		f.SetCellValue(monthlySheetName, "G"+row, p.PeriodEnd.String())
	}

	// Category sheet
	f.SetCellValue(categorySheetName, "A1", "CategoryName")
	f.SetCellValue(categorySheetName, "B1", "Type")
	f.SetCellValue(categorySheetName, "C1", "Active")
	f.SetCellValue(categorySheetName, "D1", "Count")
	f.SetCellValue(categorySheetName, "E1", "TotalAmount")
	f.SetCellValue(categorySheetName, "F1", "AverageAmount")

	for i, d := range category.Categories {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(categorySheetName, "A"+row, d.CategoryName)
		f.SetCellValue(categorySheetName, "B"+row, d.Type.String())
		f.SetCellValue(categorySheetName, "C"+row, d.IsActive)
		f.SetCellValue(categorySheetName, "D"+row, d.Count)
		f.SetCellValue(categorySheetName, "E"+row, d.TotalAmount)
		if d.AverageAmount != nil {
			f.SetCellValue(categorySheetName, "F"+row, *d.AverageAmount)
		}
	}

	return f, nil
}
