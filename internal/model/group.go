package model

// Group группа студентов (класс). Создаётся при первом упоминании по имени.
type Group struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// GroupNames возвращает имена групп в исходном порядке
func GroupNames(groups []*Group) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}
