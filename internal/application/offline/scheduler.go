package offline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const (
	DefaultSyncInterval = 30 * time.Second
	DefaultMaxAttempts  = 50
	DefaultBackoffMax   = 10 * time.Minute
	backoffBase         = 2 * time.Second
)

// SchedulerConfig parámetros del sincronizador.
type SchedulerConfig struct {
	Interval    time.Duration
	MaxAttempts int // <= 0: sin límite
	BackoffMax  time.Duration
	Clock       func() time.Time // nil usa time.Now
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSyncInterval
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// SyncReport resumen de una pasada.
type SyncReport struct {
	Attempted   int           `json:"attempted"`
	Succeeded   int           `json:"succeeded"`
	Dropped     int           `json:"dropped"`
	Failed      int           `json:"failed"`
	Deferred    int           `json:"deferred"`
	DeadLetters int           `json:"deadLetters"`
	Remaining   int           `json:"remaining"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// Scheduler reproduce periódicamente la cola de operaciones pendientes contra el remoto.
// Las pasadas nunca se solapan.
type Scheduler struct {
	executor *Executor
	queue    *Queue
	cfg      SchedulerConfig
	log      *logger.Logger
	now      func() time.Time

	runMu sync.Mutex

	stateMu sync.Mutex
	last    *SyncReport
	lastErr error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler construye el sincronizador.
func NewScheduler(executor *Executor, queue *Queue, cfg SchedulerConfig, log *logger.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		executor: executor,
		queue:    queue,
		cfg:      cfg,
		log:      log.Component("sync-scheduler"),
		now:      cfg.Clock,
	}
}

// Start lanza una pasada inmediata y luego una cada Interval, hasta Stop o cancelación de ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.stateMu.Lock()
	if s.cancel != nil {
		s.stateMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stateMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("pasada de sincronización fallida")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("sincronizador iniciado")
}

// Stop detiene el bucle y espera a que termine la pasada en curso.
func (s *Scheduler) Stop() {
	s.stateMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.stateMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("sincronizador detenido")
}

// LastReport devuelve el resultado de la última pasada (nil si no hubo ninguna).
func (s *Scheduler) LastReport() (*SyncReport, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.last == nil {
		return nil, s.lastErr
	}
	r := *s.last
	return &r, s.lastErr
}

// RunOnce reproduce en orden FIFO las operaciones vencidas. Si otra pasada está en curso
// espera a que termine. Reglas por operación:
//   - éxito: se quita de la cola.
//   - error de negocio (p. ej. stock insuficiente en el remoto): se descarta y se registra.
//   - error de infraestructura: se conserva con backoff exponencial; al llegar a
//     MaxAttempts pasa a la cola de descartes.
//
// Una vez que una entidad falla o se difiere, sus operaciones posteriores se difieren en la
// misma pasada para no reordenar escrituras sobre la misma entidad.
func (s *Scheduler) RunOnce(ctx context.Context) (SyncReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report := SyncReport{StartedAt: s.now().UTC()}
	ops, err := s.queue.Snapshot(ctx)
	if err != nil {
		s.record(nil, err)
		return report, err
	}

	var (
		done    []string
		retry   []entity.PendingOperation
		dead    []entity.PendingOperation
		blocked = make(map[string]struct{})
	)
	block := func(op entity.PendingOperation) {
		for _, k := range op.EntityKeys {
			blocked[k] = struct{}{}
		}
	}
	isBlocked := func(op entity.PendingOperation) bool {
		for _, k := range op.EntityKeys {
			if _, ok := blocked[k]; ok {
				return true
			}
		}
		return false
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if isBlocked(op) || !op.Due(s.now()) {
			report.Deferred++
			block(op)
			continue
		}
		report.Attempted++
		err := s.executor.Replay(ctx, op)
		switch {
		case err == nil:
			report.Succeeded++
			done = append(done, op.ID)
		case domain.IsBusiness(err):
			report.Dropped++
			done = append(done, op.ID)
			s.log.Error().Err(err).Str("op_id", op.ID).Str("kind", op.Kind).
				Bool("insufficient_stock", errors.Is(err, domain.ErrInsufficientStock)).
				Msg("operación descartada al sincronizar")
		default:
			report.Failed++
			block(op)
			op.Attempts++
			op.LastError = err.Error()
			if s.cfg.MaxAttempts > 0 && op.Attempts >= s.cfg.MaxAttempts {
				dead = append(dead, op)
				s.log.Error().Err(err).Str("op_id", op.ID).Int("attempts", op.Attempts).Msg("operación movida a descartes")
				continue
			}
			next := s.now().Add(s.backoff(op.Attempts))
			op.NextAttemptAt = &next
			retry = append(retry, op)
			s.log.Warn().Err(err).Str("op_id", op.ID).Str("kind", op.Kind).Int("attempts", op.Attempts).
				Time("next_attempt", next).Msg("reintento programado")
		}
	}

	if err := s.queue.Settle(ctx, done, retry, dead); err != nil {
		s.record(nil, err)
		return report, err
	}
	report.DeadLetters = len(dead)
	report.Remaining, _ = s.queue.Len(ctx)
	report.Duration = s.now().Sub(report.StartedAt)
	if report.Attempted > 0 {
		s.log.Info().
			Int("attempted", report.Attempted).
			Int("succeeded", report.Succeeded).
			Int("dropped", report.Dropped).
			Int("failed", report.Failed).
			Int("remaining", report.Remaining).
			Msg("sincronización completada")
	}
	s.record(&report, nil)
	return report, nil
}

func (s *Scheduler) record(r *SyncReport, err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if r != nil {
		s.last = r
	}
	s.lastErr = err
}

// backoff 2s, 4s, 8s... acotado por BackoffMax.
func (s *Scheduler) backoff(attempts int) time.Duration {
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}
