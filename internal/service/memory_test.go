package service

import (
	"context"
	"sort"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/queue"
	"github.com/Freeeeeet/meal_registry/internal/repository"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5/pgconn"
)

// memDB хранилище в памяти с теми же ограничениями уникальности, что и схема
type memDB struct {
	nextID int64

	students      map[int64]model.Student
	groups        map[int64]model.Group
	studentGroups map[int64][]int64
	reservations  map[int64]model.Reservation
	sessions      map[int64]model.Session
	sessionGroups map[int64][]int64
	consumptions  map[int64]model.Consumption

	commits   int
	rollbacks int

	// Столько первых поисков потребления по студенту и сеансу вернут nil,
	// как если бы строку вставила параллельная транзакция
	hiddenLookups int
}

func newMemDB() *memDB {
	return &memDB{
		students:      map[int64]model.Student{},
		groups:        map[int64]model.Group{},
		studentGroups: map[int64][]int64{},
		reservations:  map[int64]model.Reservation{},
		sessions:      map[int64]model.Session{},
		sessionGroups: map[int64][]int64{},
		consumptions:  map[int64]model.Consumption{},
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func conflict(op, table string) error {
	return &base.StoreError{Op: op, Table: table, Err: &pgconn.PgError{Code: "23505"}}
}

func (db *memDB) snapshot() *memDB {
	c := *db
	c.students = cloneMap(db.students)
	c.groups = cloneMap(db.groups)
	c.studentGroups = cloneSlices(db.studentGroups)
	c.reservations = cloneMap(db.reservations)
	c.sessions = cloneMap(db.sessions)
	c.sessionGroups = cloneSlices(db.sessionGroups)
	c.consumptions = cloneMap(db.consumptions)
	return &c
}

func (db *memDB) restore(s *memDB) {
	commits, rollbacks := db.commits, db.rollbacks
	*db = *s
	db.commits, db.rollbacks = commits, rollbacks
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	c := make(map[int64]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneSlices(m map[int64][]int64) map[int64][]int64 {
	c := make(map[int64][]int64, len(m))
	for k, v := range m {
		c[k] = append([]int64(nil), v...)
	}
	return c
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InTx откатывает все изменения fn при ошибке
func (db *memDB) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	saved := db.snapshot()
	if err := fn(memTx{db}); err != nil {
		db.restore(saved)
		db.rollbacks++
		return err
	}
	db.commits++
	return nil
}

type memTx struct{ db *memDB }

func (t memTx) Students() repository.Students         { return memStudents(t) }
func (t memTx) Groups() repository.Groups             { return memGroups(t) }
func (t memTx) Reservations() repository.Reservations { return memReservations(t) }
func (t memTx) Sessions() repository.Sessions         { return memSessions(t) }
func (t memTx) Consumptions() repository.Consumptions { return memConsumptions(t) }

// Студенты

type memStudents struct{ db *memDB }

func (r memStudents) load(s model.Student) *model.Student {
	ids := append([]int64(nil), r.db.studentGroups[s.ID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.Groups = nil
	for _, id := range ids {
		g := r.db.groups[id]
		s.Groups = append(s.Groups, &g)
	}
	return &s
}

func (r memStudents) filter(keep func(model.Student) bool) []*model.Student {
	result := []*model.Student{}
	for _, id := range sortedIDs(r.db.students) {
		if s := r.db.students[id]; keep(s) {
			result = append(result, r.load(s))
		}
	}
	return result
}

func (r memStudents) GetByProntuario(_ context.Context, prontuario string) (*model.Student, error) {
	found := r.filter(func(s model.Student) bool { return s.Prontuario == prontuario })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r memStudents) GetByProntuarios(_ context.Context, prontuarios []string) ([]*model.Student, error) {
	set := map[string]bool{}
	for _, p := range prontuarios {
		set[p] = true
	}
	return r.filter(func(s model.Student) bool { return set[s.Prontuario] }), nil
}

func (r memStudents) GetByIDs(_ context.Context, ids []int64) ([]*model.Student, error) {
	set := map[int64]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return r.filter(func(s model.Student) bool { return set[s.ID] }), nil
}

func (r memStudents) ListActive(context.Context) ([]*model.Student, error) {
	return r.filter(func(s model.Student) bool { return s.Active }), nil
}

func (r memStudents) AddToGroups(_ context.Context, studentID int64, groupIDs []int64) error {
	r.db.studentGroups[studentID] = addUnique(r.db.studentGroups[studentID], groupIDs)
	return nil
}

func (r memStudents) BulkCreate(_ context.Context, rows []base.Fields) error {
	for _, f := range rows {
		p := f["prontuario"].(string)
		for _, s := range r.db.students {
			if s.Prontuario == p {
				return conflict("bulk create", "students")
			}
		}
		id := r.db.id()
		active, _ := f["active"].(bool)
		r.db.students[id] = model.Student{ID: id, Prontuario: p, Name: f["name"].(string), Active: active}
	}
	return nil
}

func (r memStudents) BulkUpdate(_ context.Context, patches []base.Patch) error {
	for _, p := range patches {
		s, ok := r.db.students[p.ID]
		if !ok {
			continue
		}
		if name, ok := p.Fields["name"].(string); ok {
			s.Name = name
		}
		if active, ok := p.Fields["active"].(bool); ok {
			s.Active = active
		}
		r.db.students[p.ID] = s
	}
	return nil
}

func addUnique(ids []int64, add []int64) []int64 {
	for _, a := range add {
		found := false
		for _, id := range ids {
			if id == a {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, a)
		}
	}
	return ids
}

// Группы

type memGroups struct{ db *memDB }

func (r memGroups) GetByNames(_ context.Context, names []string) ([]*model.Group, error) {
	set := map[string]bool{}
	for _, n := range repository.NormalizeNames(names) {
		set[n] = true
	}
	result := []*model.Group{}
	for _, id := range sortedIDs(r.db.groups) {
		if g := r.db.groups[id]; set[g.Name] {
			result = append(result, &g)
		}
	}
	return result, nil
}

func (r memGroups) EnsureByNames(ctx context.Context, names []string) ([]*model.Group, error) {
	for _, n := range repository.NormalizeNames(names) {
		existing, _ := r.GetByNames(ctx, []string{n})
		if len(existing) == 0 {
			id := r.db.id()
			r.db.groups[id] = model.Group{ID: id, Name: n, Active: true}
		}
	}
	return r.GetByNames(ctx, names)
}

// Брони

type memReservations struct{ db *memDB }

func (r memReservations) GetActiveForDate(_ context.Context, studentID int64, date time.Time) (*model.Reservation, error) {
	for _, id := range sortedIDs(r.db.reservations) {
		res := r.db.reservations[id]
		if res.StudentID == studentID && !res.Cancelled && res.Date.Equal(model.Day(date)) {
			return &res, nil
		}
	}
	return nil, nil
}

func (r memReservations) ListActiveByDate(_ context.Context, date time.Time) ([]*model.Reservation, error) {
	result := []*model.Reservation{}
	for _, id := range sortedIDs(r.db.reservations) {
		res := r.db.reservations[id]
		if !res.Cancelled && res.Date.Equal(model.Day(date)) {
			result = append(result, &res)
		}
	}
	return result, nil
}

func (r memReservations) SetCancelled(_ context.Context, id int64, cancelled bool) (*model.Reservation, error) {
	res, ok := r.db.reservations[id]
	if !ok {
		return nil, nil
	}
	res.Cancelled = cancelled
	r.db.reservations[id] = res
	return &res, nil
}

func (r memReservations) BulkCreate(_ context.Context, rows []base.Fields) error {
	for _, f := range rows {
		studentID := f["student_id"].(int64)
		date := model.Day(f["meal_date"].(time.Time))
		dup := false
		for _, res := range r.db.reservations {
			if res.StudentID == studentID && res.Date.Equal(date) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		id := r.db.id()
		res := model.Reservation{ID: id, StudentID: studentID, Date: date}
		if dish, ok := f["dish"].(*string); ok {
			res.Dish = dish
		}
		if cancelled, ok := f["cancelled"].(bool); ok {
			res.Cancelled = cancelled
		}
		r.db.reservations[id] = res
	}
	return nil
}

// Сеансы

type memSessions struct{ db *memDB }

func (r memSessions) duplicate(s *model.Session) bool {
	for _, other := range r.db.sessions {
		if other.ID != s.ID && other.Meal == s.Meal && other.Date.Equal(s.Date) && other.Time == s.Time {
			return true
		}
	}
	return false
}

func (r memSessions) Create(_ context.Context, session *model.Session) error {
	if r.duplicate(session) {
		return conflict("create", "meal_sessions")
	}
	session.ID = r.db.id()
	stored := *session
	stored.Groups = nil
	r.db.sessions[session.ID] = stored
	return nil
}

func (r memSessions) GetByID(_ context.Context, id int64) (*model.Session, error) {
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, nil
	}
	return r.load(s), nil
}

func (r memSessions) load(s model.Session) *model.Session {
	s.Groups = nil
	for _, gid := range r.db.sessionGroups[s.ID] {
		g := r.db.groups[gid]
		s.Groups = append(s.Groups, &g)
	}
	sort.Slice(s.Groups, func(i, j int) bool { return s.Groups[i].Name < s.Groups[j].Name })
	return &s
}

func (r memSessions) List(context.Context) ([]*model.Session, error) {
	result := []*model.Session{}
	ids := sortedIDs(r.db.sessions)
	for i := len(ids) - 1; i >= 0; i-- {
		result = append(result, r.load(r.db.sessions[ids[i]]))
	}
	return result, nil
}

func (r memSessions) UpdateDetails(_ context.Context, session *model.Session) (bool, error) {
	stored, ok := r.db.sessions[session.ID]
	if !ok {
		return false, nil
	}
	if r.duplicate(session) {
		return false, conflict("update", "meal_sessions")
	}
	stored.Meal = session.Meal
	stored.Period = session.Period
	stored.Date = session.Date
	stored.Time = session.Time
	stored.ServedItem = session.ServedItem
	r.db.sessions[session.ID] = stored
	return true, nil
}

func (r memSessions) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.db.sessions[id]; !ok {
		return false, nil
	}
	delete(r.db.sessions, id)
	delete(r.db.sessionGroups, id)
	for cid, c := range r.db.consumptions {
		if c.SessionID == id {
			delete(r.db.consumptions, cid)
		}
	}
	return true, nil
}

func (r memSessions) ReplaceGroups(_ context.Context, sessionID int64, groupIDs []int64) error {
	r.db.sessionGroups[sessionID] = addUnique(nil, groupIDs)
	return nil
}

// Потребления

type memConsumptions struct{ db *memDB }

func (r memConsumptions) Create(_ context.Context, c *model.Consumption) (bool, error) {
	for _, other := range r.db.consumptions {
		if other.StudentID == c.StudentID && other.SessionID == c.SessionID {
			return false, nil
		}
	}
	c.ID = r.db.id()
	r.db.consumptions[c.ID] = *c
	return true, nil
}

func (r memConsumptions) GetByID(_ context.Context, id int64) (*model.Consumption, error) {
	c, ok := r.db.consumptions[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r memConsumptions) GetByStudentAndSession(_ context.Context, studentID, sessionID int64) (*model.Consumption, error) {
	if r.db.hiddenLookups > 0 {
		r.db.hiddenLookups--
		return nil, nil
	}
	for _, id := range sortedIDs(r.db.consumptions) {
		if c := r.db.consumptions[id]; c.StudentID == studentID && c.SessionID == sessionID {
			return &c, nil
		}
	}
	return nil, nil
}

func (r memConsumptions) GetByProntuarioAndSession(ctx context.Context, prontuario string, sessionID int64) (*model.Consumption, error) {
	student, _ := memStudents(r).GetByProntuario(ctx, prontuario)
	if student == nil {
		return nil, nil
	}
	return r.GetByStudentAndSession(ctx, student.ID, sessionID)
}

func (r memConsumptions) ListBySession(_ context.Context, sessionID int64) ([]*model.Consumption, error) {
	result := []*model.Consumption{}
	for _, id := range sortedIDs(r.db.consumptions) {
		if c := r.db.consumptions[id]; c.SessionID == sessionID {
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r memConsumptions) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.db.consumptions[id]; !ok {
		return false, nil
	}
	delete(r.db.consumptions, id)
	return true, nil
}

func (r memConsumptions) ReportBySession(ctx context.Context, sessionID int64) ([]*model.ConsumptionReport, error) {
	consumptions, _ := r.ListBySession(ctx, sessionID)
	result := []*model.ConsumptionReport{}
	for _, c := range consumptions {
		s := memStudents(r).load(r.db.students[c.StudentID])
		rep := &model.ConsumptionReport{
			ConsumptionID: c.ID,
			Prontuario:    s.Prontuario,
			StudentName:   s.Name,
			ConsumedAt:    c.ConsumedAt,
		}
		if len(s.Groups) > 0 {
			rep.GroupName = s.Groups[0].Name
		}
		if c.ReservationID != nil {
			if res, ok := r.db.reservations[*c.ReservationID]; ok {
				rep.HasReservation = true
				rep.ReservationDish = res.Dish
			}
		}
		result = append(result, rep)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].StudentName < result[j].StudentName })
	return result, nil
}

// Вспомогательные функции наполнения

func (db *memDB) addGroup(name string) int64 {
	id := db.id()
	db.groups[id] = model.Group{ID: id, Name: name, Active: true}
	return id
}

func (db *memDB) addStudent(prontuario, name string, groupIDs ...int64) int64 {
	id := db.id()
	db.students[id] = model.Student{ID: id, Prontuario: prontuario, Name: name, Active: true}
	if len(groupIDs) > 0 {
		db.studentGroups[id] = append([]int64(nil), groupIDs...)
	}
	return id
}

func (db *memDB) addReservation(studentID int64, date time.Time, dish string) int64 {
	id := db.id()
	res := model.Reservation{ID: id, StudentID: studentID, Date: model.Day(date)}
	if dish != "" {
		res.Dish = &dish
	}
	db.reservations[id] = res
	return id
}

func (db *memDB) countConsumptions(sessionID int64) int {
	n := 0
	for _, c := range db.consumptions {
		if c.SessionID == sessionID {
			n++
		}
	}
	return n
}

// Записывающие заглушки событий и метрик

type recordingPublisher struct {
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event queue.ConsumptionEvent) error {
	p.events = append(p.events, string(event.Type)+":"+event.Prontuario)
	return p.err
}

type recordingMetrics struct {
	outcomes map[string]int
	undone   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: map[string]int{}}
}

func (m *recordingMetrics) RegistrationOutcome(meal model.MealKind, outcome string) {
	m.outcomes[string(meal)+"/"+outcome]++
}

func (m *recordingMetrics) ConsumptionUndone() { m.undone++ }
