package model

import (
	"regexp"
	"strings"
	"time"
)

// NoGroupLabel отображается, когда студент не состоит ни в одной группе
const NoGroupLabel = "N/A"

var iqPrefix = regexp.MustCompile(`[Ii][Qq]\d0+`)

var codeReplacer = strings.NewReplacer(
	"0", "a", "1", "b", "2", "c", "3", "d", "4", "e",
	"5", "f", "6", "g", "7", "h", "8", "i", "9", "j",
	"X", "k", "x", "k",
)

type Student struct {
	ID         int64     `json:"id"`
	Prontuario string    `json:"prontuario"` // Внешний идентификатор, уникален
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`

	// Заполняется репозиторием при предзагрузке групп
	Groups []*Group `json:"groups,omitempty"`
}

// GroupIDs возвращает множество идентификаторов групп студента
func (s *Student) GroupIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(s.Groups))
	for _, g := range s.Groups {
		ids[g.ID] = struct{}{}
	}
	return ids
}

// PrimaryGroupName возвращает имя первой группы или NoGroupLabel
func (s *Student) PrimaryGroupName() string {
	if len(s.Groups) == 0 {
		return NoGroupLabel
	}
	return s.Groups[0].Name
}

// SearchCode возвращает упрощённый код для поиска по prontuário
func (s *Student) SearchCode() string {
	return SearchCode(s.Prontuario)
}

// SearchCode убирает префикс IQ<d>0… и переводит цифры в буквы,
// разделяя символы пробелами.
func SearchCode(prontuario string) string {
	stripped := iqPrefix.ReplaceAllString(prontuario, "")
	translated := codeReplacer.Replace(stripped)

	chars := make([]string, 0, len(translated))
	for _, r := range translated {
		chars = append(chars, string(r))
	}
	return strings.Join(chars, " ")
}
