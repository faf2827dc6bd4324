package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Freeeeeet/meal_registry/internal/model"
)

// Header колонки выгрузки потреблений
var Header = []string{"Prontuário", "Data", "Nome", "Turma", "Refeição", "Hora"}

// FileName имя файла выгрузки: Lunch.2025-11-04.11.30.csv
func FileName(session *model.Session) string {
	meal := string(session.Meal)
	if meal != "" {
		meal = strings.ToUpper(meal[:1]) + meal[1:]
	}
	return strings.Join([]string{
		meal,
		session.Date.Format(model.DateLayout),
		strings.ReplaceAll(session.Time, ":", "."),
		"csv",
	}, ".")
}

// WriteCSV пишет строки выгрузки сеанса в w
func WriteCSV(w io.Writer, session *model.Session, rows []*model.ConsumptionReport) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	date := session.Date.Format(model.DateLayout)
	for _, row := range rows {
		record := []string{
			row.Prontuario,
			date,
			row.StudentName,
			row.GroupName,
			row.Dish,
			row.ConsumedAt,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", row.ConsumptionID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
