package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/service"
)

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return parseCSV(f)
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

// parseStudents: prontuario,name[,group1;group2[,inactive]]
func parseStudents(records [][]string) ([]service.StudentRecord, error) {
	result := make([]service.StudentRecord, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 fields", i+1)
		}
		st := service.StudentRecord{Prontuario: rec[0], Name: rec[1]}
		if len(rec) > 2 && rec[2] != "" {
			st.Groups = strings.Split(rec[2], ";")
		}
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			inactive, err := strconv.ParseBool(strings.TrimSpace(rec[3]))
			if err != nil {
				return nil, fmt.Errorf("line %d: inactive: %w", i+1, err)
			}
			st.Inactive = inactive
		}
		result = append(result, st)
	}
	return result, nil
}

// parseReservations: prontuario,YYYY-MM-DD[,dish[,cancelled]]
func parseReservations(records [][]string) ([]service.ReservationRecord, error) {
	result := make([]service.ReservationRecord, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 fields", i+1)
		}
		date, err := model.ParseDate(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		res := service.ReservationRecord{Prontuario: rec[0], Date: date}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			dish := strings.TrimSpace(rec[2])
			res.Dish = &dish
		}
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			res.Cancelled, err = strconv.ParseBool(strings.TrimSpace(rec[3]))
			if err != nil {
				return nil, fmt.Errorf("line %d: cancelled: %w", i+1, err)
			}
		}
		result = append(result, res)
	}
	return result, nil
}

func importStudents(ctx context.Context, imports *service.ImportService, path string) error {
	records, err := readCSV(path)
	if err != nil {
		return err
	}
	students, err := parseStudents(records)
	if err != nil {
		return err
	}

	summary, err := imports.ImportStudents(ctx, students)
	if err != nil {
		return err
	}
	fmt.Printf("created %d, updated %d, skipped %d\n", summary.Submitted, summary.Updated, summary.Skipped)
	return nil
}

func importReservations(ctx context.Context, imports *service.ImportService, path string) error {
	records, err := readCSV(path)
	if err != nil {
		return err
	}
	reservations, err := parseReservations(records)
	if err != nil {
		return err
	}

	summary, err := imports.ImportReservations(ctx, reservations)
	if err != nil {
		return err
	}
	fmt.Printf("submitted %d, skipped %d\n", summary.Submitted, summary.Skipped)
	if len(summary.Unknown) > 0 {
		fmt.Printf("unknown prontuarios: %s\n", strings.Join(summary.Unknown, ", "))
	}
	return nil
}
