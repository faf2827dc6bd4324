package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/report"
	"github.com/Freeeeeet/meal_registry/internal/service"
	"go.uber.org/zap"
)

// Registry операции фасада, доступные оператору раздачи
type Registry interface {
	CreateSession(ctx context.Context, params service.NewSession) (int64, error)
	SetActive(ctx context.Context, id int64) error
	Deactivate()
	ActiveSession(ctx context.Context) (*model.Session, error)
	UpdateExceptionGroups(ctx context.Context, names []string) error
	ListStudents(ctx context.Context, filter service.ConsumedFilter) ([]service.StudentRow, error)
	Register(ctx context.Context, prontuario string) (*service.RegistrationResult, error)
	UndoConsumption(ctx context.Context, consumptionID int64) (bool, error)
	UndoStudent(ctx context.Context, prontuario string) (bool, error)
	ListConsumptions(ctx context.Context, sessionID int64) ([]*model.ConsumptionReport, error)
}

const help = `commands:
  <prontuario>                                  register a student in the active session
  register <prontuario>                         same as above
  start <meal> <YYYY-MM-DD> <HH:MM> [g1,g2] [| served item]
                                                create a session and make it active
  activate <session_id>                         make an existing session active
  deactivate                                    clear the active session
  session                                       show the active session
  groups [g1,g2]                                replace exception groups of the active session
  students | pending | consumed                 list students of the active session
  undo <prontuario>                             undo a student's consumption
  undo-id <consumption_id>                      undo a consumption by id
  export [dir]                                  write the active session report as CSV
  help
  exit
`

var errUsage = errors.New("wrong arguments, type help")

// Console построчный интерфейс оператора поверх фасада. Все регистрации идут
// через один Registry, поэтому метрики и события видят каждую из них.
type Console struct {
	registry Registry
	logger   *zap.Logger
}

func New(registry Registry, logger *zap.Logger) *Console {
	return &Console{registry: registry, logger: logger}
}

// Run читает команды из in до EOF, exit или отмены ctx
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprint(out, "type help for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if c.Handle(ctx, out, line) {
				return nil
			}
		}
	}
}

// Handle выполняет одну команду. Возвращает true, если оператор вышел.
func (c *Console) Handle(ctx context.Context, out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch strings.ToLower(cmd) {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprint(out, help)
	case "register":
		err = c.register(ctx, out, rest)
	case "start":
		err = c.start(ctx, out, rest)
	case "activate":
		err = c.activate(ctx, out, rest)
	case "deactivate":
		c.registry.Deactivate()
		fmt.Fprintln(out, "no active session")
	case "session":
		err = c.session(ctx, out)
	case "groups":
		err = c.groups(ctx, out, rest)
	case "students":
		err = c.list(ctx, out, service.AnyConsumption)
	case "pending":
		err = c.list(ctx, out, service.OnlyPending)
	case "consumed":
		err = c.list(ctx, out, service.OnlyConsumed)
	case "undo":
		err = c.undo(ctx, out, rest)
	case "undo-id":
		err = c.undoID(ctx, out, rest)
	case "export":
		err = c.export(ctx, out, rest)
	default:
		// Сканер штрихкода присылает только prontuário
		if rest != "" {
			err = fmt.Errorf("unknown command %q", cmd)
			break
		}
		err = c.register(ctx, out, cmd)
	}

	if err != nil {
		c.logger.Warn("Console command failed", zap.String("command", cmd), zap.Error(err))
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}

func (c *Console) register(ctx context.Context, out io.Writer, prontuario string) error {
	if prontuario == "" {
		return errUsage
	}

	res, err := c.registry.Register(ctx, prontuario)
	if err != nil {
		return err
	}

	mark := "DENIED"
	if res.Authorized {
		mark = "OK"
	}
	fmt.Fprintf(out, "%s %s %s: %s", mark, res.Prontuario, res.StudentName, res.Reason)
	if res.Dish != "" {
		fmt.Fprintf(out, " (%s)", res.Dish)
	}
	fmt.Fprintln(out)
	return nil
}

// start <meal> <date> <time> [g1,g2] [| served item]
func (c *Console) start(ctx context.Context, out io.Writer, args string) error {
	head, item, _ := strings.Cut(args, "|")
	fields := strings.Fields(head)
	if len(fields) < 3 {
		return errUsage
	}

	meal, err := model.ParseMealKind(fields[0])
	if err != nil {
		return err
	}
	date, err := model.ParseDate(fields[1])
	if err != nil {
		return err
	}

	params := service.NewSession{Meal: meal, Date: date, Time: fields[2]}
	if len(fields) > 3 {
		params.ExceptionGroups = strings.Split(strings.Join(fields[3:], " "), ",")
	}
	if item = strings.TrimSpace(item); item != "" {
		params.ServedItem = &item
	}

	id, err := c.registry.CreateSession(ctx, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %d active\n", id)
	return nil
}

func (c *Console) activate(ctx context.Context, out io.Writer, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return errUsage
	}
	if err := c.registry.SetActive(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "session %d active\n", id)
	return nil
}

func (c *Console) session(ctx context.Context, out io.Writer) error {
	s, err := c.registry.ActiveSession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %d: %s %s %s", s.ID, s.Meal, s.Date.Format(model.DateLayout), s.Time)
	if s.Meal == model.MealSnack {
		fmt.Fprintf(out, " (%s)", s.SnackLabel())
	}
	fmt.Fprintf(out, " groups %v\n", model.GroupNames(s.Groups))
	return nil
}

func (c *Console) groups(ctx context.Context, out io.Writer, arg string) error {
	var names []string
	if arg != "" {
		names = strings.Split(arg, ",")
	}
	if err := c.registry.UpdateExceptionGroups(ctx, names); err != nil {
		return err
	}
	return c.session(ctx, out)
}

func (c *Console) list(ctx context.Context, out io.Writer, filter service.ConsumedFilter) error {
	rows, err := c.registry.ListStudents(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRONTUARIO\tNAME\tGROUP\tDISH\tSTATUS")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Prontuario, r.Name, r.Group, r.Dish, r.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d students\n", len(rows))
	return nil
}

func (c *Console) undo(ctx context.Context, out io.Writer, prontuario string) error {
	if prontuario == "" {
		return errUsage
	}
	undone, err := c.registry.UndoStudent(ctx, prontuario)
	if err != nil {
		return err
	}
	printUndo(out, undone)
	return nil
}

func (c *Console) undoID(ctx context.Context, out io.Writer, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return errUsage
	}
	undone, err := c.registry.UndoConsumption(ctx, id)
	if err != nil {
		return err
	}
	printUndo(out, undone)
	return nil
}

func printUndo(out io.Writer, undone bool) {
	if undone {
		fmt.Fprintln(out, "undone")
		return
	}
	fmt.Fprintln(out, "nothing to undo")
}

// export пишет отчёт активного сеанса в dir под именем report.FileName
func (c *Console) export(ctx context.Context, out io.Writer, dir string) error {
	if dir == "" {
		dir = "."
	}

	session, err := c.registry.ActiveSession(ctx)
	if err != nil {
		return err
	}
	rows, err := c.registry.ListConsumptions(ctx, session.ID)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, report.FileName(session))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := report.WriteCSV(f, session, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	c.logger.Info("Session exported",
		zap.Int64("session_id", session.ID),
		zap.String("file", path),
		zap.Int("rows", len(rows)),
	)
	fmt.Fprintf(out, "exported %d rows to %s\n", len(rows), path)
	return nil
}
