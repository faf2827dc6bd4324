package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"go.uber.org/zap"
)

// StudentRecord строка импорта студентов (уже сопоставленная внешним мастером)
type StudentRecord struct {
	Prontuario string
	Name       string
	Groups     []string
	// Inactive снимает студента с выдачи без удаления истории
	Inactive bool
}

// ReservationRecord строка импорта броней
type ReservationRecord struct {
	Prontuario string
	Date       time.Time
	Dish       *string
	Cancelled  bool
}

// ImportSummary итог импорта
type ImportSummary struct {
	Submitted int      `json:"submitted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Unknown   []string `json:"unknown,omitempty"`
}

// ImportService массовая загрузка студентов и броней. Нечёткое сопоставление
// имён остаётся на стороне вызывающего.
type ImportService struct {
	tx     repository.TxRunner
	logger *zap.Logger
}

func NewImportService(tx repository.TxRunner, logger *zap.Logger) *ImportService {
	return &ImportService{tx: tx, logger: logger}
}

// ImportStudents создаёт отсутствующих студентов, обновляет имя и признак
// активности известных одним пакетом и добавляет всех в их группы.
// Ошибка любой строки откатывает весь импорт.
func (s *ImportService) ImportStudents(ctx context.Context, records []StudentRecord) (*ImportSummary, error) {
	summary := &ImportSummary{}

	records, dup := dedupeStudents(records)
	summary.Skipped += dup
	if len(records) == 0 {
		return summary, nil
	}

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		prontuarios := make([]string, 0, len(records))
		for _, r := range records {
			prontuarios = append(prontuarios, r.Prontuario)
		}

		existing, err := tx.Students().GetByProntuarios(ctx, prontuarios)
		if err != nil {
			return fmt.Errorf("get existing students: %w", err)
		}
		known := make(map[string]*model.Student, len(existing))
		for _, st := range existing {
			known[st.Prontuario] = st
		}

		rows := make([]base.Fields, 0, len(records))
		var patches []base.Patch
		for _, r := range records {
			st, ok := known[r.Prontuario]
			if !ok {
				rows = append(rows, base.Fields{
					"prontuario": r.Prontuario,
					"name":       r.Name,
					"active":     !r.Inactive,
				})
				continue
			}
			if st.Name == r.Name && st.Active == !r.Inactive {
				summary.Skipped++
				continue
			}
			patches = append(patches, base.Patch{
				ID:     st.ID,
				Fields: base.Fields{"name": r.Name, "active": !r.Inactive},
			})
		}

		if err := tx.Students().BulkCreate(ctx, rows); err != nil {
			return fmt.Errorf("bulk create students: %w", err)
		}
		summary.Submitted = len(rows)

		if err := tx.Students().BulkUpdate(ctx, patches); err != nil {
			return fmt.Errorf("bulk update students: %w", err)
		}
		summary.Updated = len(patches)

		students, err := tx.Students().GetByProntuarios(ctx, prontuarios)
		if err != nil {
			return fmt.Errorf("reload students: %w", err)
		}
		byProntuario := make(map[string]*model.Student, len(students))
		for _, st := range students {
			byProntuario[st.Prontuario] = st
		}

		var names []string
		for _, r := range records {
			names = append(names, r.Groups...)
		}
		groups, err := tx.Groups().EnsureByNames(ctx, names)
		if err != nil {
			return fmt.Errorf("ensure groups: %w", err)
		}
		groupIDs := make(map[string]int64, len(groups))
		for _, g := range groups {
			groupIDs[g.Name] = g.ID
		}

		for _, r := range records {
			st, ok := byProntuario[r.Prontuario]
			if !ok {
				continue
			}
			var ids []int64
			for _, name := range repository.NormalizeNames(r.Groups) {
				if id, ok := groupIDs[name]; ok {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				continue
			}
			if err := tx.Students().AddToGroups(ctx, st.ID, ids); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Students imported",
		zap.Int("submitted", summary.Submitted),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func dedupeStudents(records []StudentRecord) ([]StudentRecord, int) {
	seen := make(map[string]struct{}, len(records))
	result := make([]StudentRecord, 0, len(records))
	skipped := 0
	for _, r := range records {
		r.Prontuario = strings.TrimSpace(r.Prontuario)
		r.Name = strings.TrimSpace(r.Name)
		if r.Prontuario == "" || r.Name == "" {
			skipped++
			continue
		}
		if _, ok := seen[r.Prontuario]; ok {
			skipped++
			continue
		}
		seen[r.Prontuario] = struct{}{}
		result = append(result, r)
	}
	return result, skipped
}

// ImportReservations создаёт брони. Повтор (студент, дата) молча пропускается,
// неизвестные prontuário возвращаются в Unknown.
func (s *ImportService) ImportReservations(ctx context.Context, records []ReservationRecord) (*ImportSummary, error) {
	summary := &ImportSummary{}
	if len(records) == 0 {
		return summary, nil
	}

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		prontuarios := make([]string, 0, len(records))
		for _, r := range records {
			prontuarios = append(prontuarios, strings.TrimSpace(r.Prontuario))
		}

		students, err := tx.Students().GetByProntuarios(ctx, prontuarios)
		if err != nil {
			return fmt.Errorf("resolve students: %w", err)
		}
		ids := make(map[string]int64, len(students))
		for _, st := range students {
			ids[st.Prontuario] = st.ID
		}

		reported := make(map[string]struct{})
		rows := make([]base.Fields, 0, len(records))
		for i, r := range records {
			p := prontuarios[i]
			id, ok := ids[p]
			if !ok {
				summary.Skipped++
				if _, dup := reported[p]; !dup {
					reported[p] = struct{}{}
					summary.Unknown = append(summary.Unknown, p)
				}
				continue
			}
			rows = append(rows, base.Fields{
				"student_id": id,
				"meal_date":  model.Day(r.Date),
				"dish":       r.Dish,
				"cancelled":  r.Cancelled,
			})
		}

		if err := tx.Reservations().BulkCreate(ctx, rows); err != nil {
			return fmt.Errorf("bulk create reservations: %w", err)
		}
		summary.Submitted = len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reservations imported",
		zap.Int("submitted", summary.Submitted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("unknown", len(summary.Unknown)),
	)
	return summary, nil
}
