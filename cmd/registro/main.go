package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/app"
	"github.com/Freeeeeet/meal_registry/internal/config"
	"github.com/Freeeeeet/meal_registry/internal/controller/console"
	"github.com/Freeeeeet/meal_registry/internal/metrics"
	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/queue"
	"github.com/Freeeeeet/meal_registry/internal/report"
	"github.com/Freeeeeet/meal_registry/internal/repository"
	"github.com/Freeeeeet/meal_registry/internal/service"
	"github.com/Freeeeeet/meal_registry/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const usage = `usage: registro <command> [args]

commands:
  migrate                        apply database migrations
  sessions                       list sessions
  export <session_id>            write consumptions of a session as CSV to stdout
  import-students <file.csv>     prontuario,name,group1;group2[,inactive]
  import-reservations <file.csv> prontuario,YYYY-MM-DD,dish,cancelled
  serve [session_id]             run the operator console on stdin; registrations,
                                 /metrics (METRICS_ADDR) and events share this process`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)

	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}

type services struct {
	facade  *service.SessionFacade
	imports *service.ImportService
	metrics *metrics.Metrics
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, command string, args []string) error {
	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		return err
	}
	if command == "migrate" {
		return nil
	}

	svc := newServices(cfg, pool, logger)

	switch command {
	case "sessions":
		return listSessions(ctx, svc.facade)
	case "export":
		if len(args) != 1 {
			return errors.New("export requires a session id")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parse session id: %w", err)
		}
		return exportSession(ctx, svc.facade, id, logger)
	case "import-students":
		if len(args) != 1 {
			return errors.New("import-students requires a file")
		}
		return importStudents(ctx, svc.imports, args[0])
	case "import-reservations":
		if len(args) != 1 {
			return errors.New("import-reservations requires a file")
		}
		return importReservations(ctx, svc.imports, args[0])
	case "serve":
		return serve(ctx, cfg, svc, logger, args)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) *services {
	tx := repository.NewTransactor(pool)
	m := metrics.New()

	var publisher service.EventPublisher
	if cfg.EventsEnabled() {
		publisher = queue.NewPublisher(cfg.AMQPURL, cfg.ConsumptionQueue, logger)
		logger.Info("Consumption events enabled", zap.String("queue", cfg.ConsumptionQueue))
	}

	registration := service.NewRegistrationService(tx, publisher, m, logger)
	return &services{
		facade:  service.NewSessionFacade(tx, registration, logger),
		imports: service.NewImportService(tx, logger),
		metrics: m,
	}
}

func listSessions(ctx context.Context, facade *service.SessionFacade) error {
	sessions, err := facade.ListSessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMEAL\tDATE\tTIME\tPERIOD\tGROUPS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\n",
			s.ID, s.Meal, s.Date.Format(model.DateLayout), s.Time, s.Period, model.GroupNames(s.Groups))
	}
	return w.Flush()
}

func exportSession(ctx context.Context, facade *service.SessionFacade, id int64, logger *zap.Logger) error {
	session, err := facade.GetSession(ctx, id)
	if err != nil {
		return err
	}

	rows, err := facade.ListConsumptions(ctx, id)
	if err != nil {
		return err
	}

	if err := report.WriteCSV(os.Stdout, session, rows); err != nil {
		return err
	}

	logger.Info("Session exported",
		zap.Int64("session_id", id),
		zap.String("suggested_file", report.FileName(session)),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// serve держит фасад в одном процессе с /metrics и издателем событий.
// Завершается по exit, EOF на stdin или сигналу.
func serve(ctx context.Context, cfg *config.Config, svc *services, logger *zap.Logger, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parse session id: %w", err)
		}
		if err := svc.facade.SetActive(ctx, id); err != nil {
			return err
		}
	}

	metricsDone := make(chan struct{})
	if cfg.MetricsAddr != "" {
		go func() {
			defer close(metricsDone)
			if err := serveMetrics(ctx, cfg, svc.metrics, logger); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
				cancel()
			}
		}()
	} else {
		close(metricsDone)
		logger.Info("METRICS_ADDR is not set, /metrics disabled")
	}

	err := console.New(svc.facade, logger).Run(ctx, os.Stdin, os.Stdout)
	cancel()
	<-metricsDone
	return err
}

func serveMetrics(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server started", zap.String("addr", cfg.MetricsAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
