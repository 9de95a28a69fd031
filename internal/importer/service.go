package importer

// service.go drives the whole import: pre-scan, streaming read, batching,
// pacing, session bookkeeping and cleanup. One import is one worker
// goroutine; within it, at most one batch is in flight at a time, so batch
// N is fully committed or rolled back before batch N+1 starts and later
// duplicate checks always observe earlier commits.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koffiyao/cartes/internal/audit"
	"github.com/koffiyao/cartes/internal/logging"
)

// Pre-flight errors.
var (
	ErrTooManyRows    = errors.New("file exceeds the configured row limit")
	ErrMissingHeaders = errors.New("required headers missing")
)

// estimateSampleRows is how many rows the pre-scan reads before
// extrapolating a size-based row count on large files.
const estimateSampleRows = 200

// Config tunes the import engine. Zero values are replaced by conservative
// defaults suited to memory-capped hosting.
type Config struct {
	BatchSize         int
	BatchTimeout      time.Duration
	MaxRows           int
	MaxConcurrent     int
	MaxWait           time.Duration
	LowMemory         bool
	PauseEvery        int
	PauseDuration     time.Duration
	AuditEvery        int
	EstimateThreshold int64
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 200000
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.PauseEvery <= 0 {
		c.PauseEvery = 5
	}
	if c.PauseDuration <= 0 {
		c.PauseDuration = 200 * time.Millisecond
	}
	if c.AuditEvery <= 0 {
		c.AuditEvery = 1
	}
	if c.EstimateThreshold <= 0 {
		c.EstimateThreshold = 5 * 1024 * 1024
	}
	return c
}

// StartRequest describes one import to run.
type StartRequest struct {
	// Path is the spooled source file. The service removes it when the
	// import finishes, regardless of outcome.
	Path     string
	Filename string
	Owner    string
	Mode     Mode

	// FailFast stops the import at the first batch-level error instead of
	// continuing with the next batch.
	FailFast bool

	// Events receives pipeline lifecycle callbacks. Optional.
	Events Events
}

// Service runs bulk imports and answers status queries.
type Service struct {
	cfg      Config
	registry Registry
	sink     audit.Sink
	sessions SessionStore
	limiter  *Limiter

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService wires the import engine. sink may be audit.Discard{}.
func NewService(cfg Config, registry Registry, sink audit.Sink, sessions SessionStore) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		registry: registry,
		sink:     sink,
		sessions: sessions,
		limiter:  NewLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins an asynchronous import and returns its session id
// immediately. Returns ErrTooManyImports when no slot frees up in time.
func (s *Service) Start(ctx context.Context, req StartRequest) (string, error) {
	if req.Mode == "" {
		req.Mode = ModeSmartSync
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		os.Remove(req.Path)
		return "", err
	}

	session := &Session{
		ID:        uuid.New().String(),
		Filename:  req.Filename,
		Owner:     req.Owner,
		Mode:      req.Mode,
		Status:    StatusPending,
		StartTime: time.Now(),
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		s.limiter.Release()
		os.Remove(req.Path)
		return "", fmt.Errorf("create session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[session.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer s.limiter.Release()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, session.ID)
			s.mu.Unlock()
			cancel()
		}()
		defer os.Remove(req.Path)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import worker",
					"session_id", session.ID,
					"file", req.Filename,
					"panic", r,
				)
				s.finish(session, StatusFailed, fmt.Sprintf("internal error: %v", r))
			}
		}()

		s.runImport(runCtx, session, req)
	}()

	return session.ID, nil
}

// Get returns the current snapshot of a session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.sessions.Get(ctx, id)
}

// List returns the most recent sessions.
func (s *Service) List(ctx context.Context, limit int) ([]*Session, error) {
	return s.sessions.List(ctx, limit)
}

// Cancel requests cooperative cancellation of a running import. The
// in-flight batch finishes or rolls back; no partial batch is ever left
// visible. Terminal sessions return ErrAlreadyTerminal.
func (s *Service) Cancel(ctx context.Context, id string) (*Session, error) {
	session, err := s.sessions.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return session, nil
}

// WaitForDrain blocks until running imports finish, for graceful shutdown.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ----------------------------------------------------------------------------
// Pipeline
// ----------------------------------------------------------------------------

// runImport executes the whole pipeline for one session.
func (s *Service) runImport(ctx context.Context, session *Session, req StartRequest) {
	log := logging.WithFields(ctx, "session_id", session.ID, "file", req.Filename)
	start := time.Now()

	// Pre-flight: header validation and row counting before touching the
	// database. Failures here leave no partial state at all.
	total, estimated, err := s.preScan(req.Path)
	if err != nil {
		log.Warn("import rejected in pre-scan", "error", err)
		s.finish(session, StatusFailed, err.Error())
		return
	}

	session.Status = StatusProcessing
	session.TotalRows = total
	session.EstimatedTotal = estimated
	s.put(session)
	log.Info("import started", "total_rows", total, "estimated", estimated, "mode", req.Mode)

	src, err := openSource(req.Path)
	if err != nil {
		s.finish(session, StatusFailed, err.Error())
		return
	}
	defer src.Close()

	batchID := uuid.New()
	processor := &batchProcessor{
		registry:   s.registry,
		sink:       s.sink,
		mode:       req.Mode,
		batchID:    batchID,
		actor:      req.Owner,
		timeout:    s.cfg.BatchTimeout,
		auditEvery: s.auditThrottle(),
	}

	var (
		cumulative BatchResult
		batch      = make([]RawRow, 0, s.cfg.BatchSize)
		headerMap  HeaderMap
		lineNum    = 1 // header row
		batchNum   int
		cancelled  bool
		failed     string
	)
	headerMap = MapHeaders(src.Headers())

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		batchNum++
		batchStart := time.Now()

		result, err := processor.ProcessBatch(ctx, batch)
		metricBatchSeconds.Observe(time.Since(batchStart).Seconds())
		cumulative.Add(result)
		batch = batch[:0]

		if err != nil {
			metricBatchErrors.Inc()
			req.Events.batchError(batchNum, err)
			log.Warn("batch rolled back", "batch", batchNum, "error", err)
			if req.FailFast {
				failed = fmt.Sprintf("batch %d failed: %v", batchNum, err)
				return false
			}
		} else {
			observeRows(result)
			req.Events.batchComplete(batchNum, result)
		}

		session.applyResult(cumulative)
		s.put(session)
		req.Events.progress(cumulative.Rows(), session.TotalRows)

		if s.isCancelled(ctx, session.ID) {
			cancelled = true
			return false
		}
		return s.pace(ctx, batchNum)
	}

	for {
		record, err := src.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			var rowErr *RowParseError
			if errors.As(err, &rowErr) {
				lineNum++
				cumulative.Errors++
				cumulative.recordError(rowErr.Line, rowErr.Error())
				req.Events.warning(rowErr.Error())
				continue
			}
			failed = fmt.Sprintf("read source: %v", err)
			break
		}

		lineNum++
		batch = append(batch, RawRow{
			LineNumber: lineNum,
			Values:     headerMap.Extract(record),
		})

		if len(batch) >= s.cfg.BatchSize {
			if !flush() {
				break
			}
		}
	}

	// Final partial batch, unless the run already stopped.
	if failed == "" && !cancelled {
		flush()
	}

	// A sampled estimate can undershoot; the true consumed count wins but
	// the total never decreases mid-run for pollers.
	if consumed := cumulative.Rows(); consumed > session.TotalRows {
		session.TotalRows = consumed
	}
	session.applyResult(cumulative)

	switch {
	case cancelled || ctx.Err() != nil:
		log.Info("import cancelled", "rows", cumulative.Rows())
		s.finish(session, StatusCancelled, "")
	case failed != "":
		log.Error("import failed", "error", failed)
		s.finish(session, StatusFailed, failed)
	default:
		session.Progress = 100
		log.Info("import completed",
			"imported", cumulative.Imported,
			"updated", cumulative.Updated,
			"duplicates", cumulative.Duplicates,
			"skipped", cumulative.Skipped,
			"errors", cumulative.Errors,
			"duration", time.Since(start),
		)
		s.finish(session, StatusCompleted, "")
		s.sink.LogAction(context.Background(), audit.Entry{
			Actor:         req.Owner,
			Action:        audit.ActionImportRun,
			TableName:     "cartes",
			ImportBatchID: uuid.NullUUID{UUID: batchID, Valid: true},
			Details: fmt.Sprintf("%s: %d imported, %d updated, %d duplicates, %d skipped, %d errors",
				req.Filename, cumulative.Imported, cumulative.Updated,
				cumulative.Duplicates, cumulative.Skipped, cumulative.Errors),
		})
	}
}

// preScan validates headers and determines the total row count before any
// row is processed. On large delimited files under the low-memory profile
// the count is extrapolated from a sample instead of a full pass.
func (s *Service) preScan(path string) (total int, estimated bool, err error) {
	src, err := openSource(path)
	if err != nil {
		return 0, false, err
	}
	defer src.Close()

	if missing := ValidateHeaders(src.Headers()); len(missing) > 0 {
		return 0, false, fmt.Errorf("%w: %v", ErrMissingHeaders, missing)
	}

	csvSrc, isCSV := src.(*csvSource)
	useEstimate := isCSV && s.cfg.LowMemory && csvSrc.fileSize() > s.cfg.EstimateThreshold

	count := 0
	for {
		_, err := src.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			var rowErr *RowParseError
			if errors.As(err, &rowErr) {
				count++ // still a row the main pass will account for
				continue
			}
			return 0, false, fmt.Errorf("pre-scan: %w", err)
		}
		count++

		if useEstimate && count >= estimateSampleRows {
			read := csvSrc.bytesRead()
			if read > 0 {
				perRow := float64(read) / float64(count)
				count = int(float64(csvSrc.fileSize()) / perRow)
				estimated = true
			}
			break
		}
	}

	if count == 0 {
		return 0, false, fmt.Errorf("no data rows after header")
	}
	if count > s.cfg.MaxRows {
		return 0, estimated, fmt.Errorf("%w: %d rows (limit %d)", ErrTooManyRows, count, s.cfg.MaxRows)
	}
	return count, estimated, nil
}

// pace inserts the adaptive pause after every PauseEvery batches under the
// low-memory profile, letting the runtime reclaim memory between bursts.
// Returns false when the pause was interrupted by cancellation.
func (s *Service) pace(ctx context.Context, batchNum int) bool {
	if !s.cfg.LowMemory || batchNum%s.cfg.PauseEvery != 0 {
		return true
	}
	select {
	case <-time.After(s.cfg.PauseDuration):
		return true
	case <-ctx.Done():
		return false
	}
}

// auditThrottle returns the per-row journal sampling interval.
func (s *Service) auditThrottle() int {
	if s.cfg.LowMemory {
		return s.cfg.AuditEvery
	}
	return 1
}

// isCancelled checks both the local cancel context and the shared session
// store, so cancellations issued on another instance are honored too.
func (s *Service) isCancelled(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return true
	}
	stored, err := s.sessions.Get(context.Background(), id)
	if err != nil {
		return false
	}
	return stored.Status == StatusCancelled
}

// finish moves the session to a terminal state and persists it. A session
// already cancelled in the store stays cancelled.
func (s *Service) finish(session *Session, status Status, errMsg string) {
	if stored, err := s.sessions.Get(context.Background(), session.ID); err == nil &&
		stored.Status == StatusCancelled {
		status = StatusCancelled
	}
	session.Status = status
	session.Error = errMsg
	session.EndTime = time.Now()
	s.put(session)
	metricSessions.WithLabelValues(string(status)).Inc()
}

// put persists a session snapshot, detached from the run's cancel context
// so terminal updates survive cancellation.
func (s *Service) put(session *Session) {
	if err := s.sessions.Put(context.Background(), session); err != nil {
		slog.Warn("session store update failed", "session_id", session.ID, "error", err)
	}
}
