package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"shopsync/internal/domain"
)

// AbandonedReport writes an XLSX report of a tenant's abandoned queue items
// so operators can resolve them by hand.
func AbandonedReport(ctx context.Context, queue domain.QueueRepository, tenantID, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	items, err := queue.ListAbandoned(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("error listing abandoned items: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Abandoned"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Tenant %s - abandoned sync items (%s)",
		tenantID, time.Now().Format("2006-01-02 15:04")))

	headers := []string{"Queue ID", "Entity Type", "Entity ID", "Operation", "Actor", "Retries", "Last Error", "Enqueued At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	firstHeader, _ := excelize.CoordinatesToCellName(1, 2)
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 2)
	_ = f.SetCellStyle(sheetName, firstHeader, lastHeader, headerStyle)

	for row, item := range items {
		lastError := ""
		if item.LastError != nil {
			lastError = *item.LastError
		}
		values := []interface{}{
			item.QueueID,
			item.EntityType,
			item.EntityID,
			item.Operation,
			item.ActorUserID,
			item.RetryCount,
			lastError,
			item.EnqueuedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+3)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "F", 14)
	_ = f.SetColWidth(sheetName, "G", "G", 50)
	_ = f.SetColWidth(sheetName, "H", "H", 22)
	_ = f.MergeCell(sheetName, "A1", lastHeader[:1]+"1")
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("abandoned_%s_%s.xlsx", tenantID, time.Now().Format("2006-01-02"))
	filePath := filepath.Join(dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}
