// Package engine orchestrates reconciliation passes: it diffs the external
// record table, the partner ledger and the relational mirror, applies the
// parser and balance ledger, propagates mutations back to the sources and
// publishes the dashboard snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/ledger"
	"github.com/fintally/tally/internal/metrics"
	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/parse"
	"github.com/fintally/tally/internal/source"
	"github.com/fintally/tally/internal/storage"
)

// ErrLockContention is returned by RunPass when another pass holds the
// lease. The invocation is a no-op.
var ErrLockContention = errors.New("another pass in progress")

// leaseName is the fixed resource every pass contends on.
const leaseName = "sync-pass"

// Publisher turns ledger state into the dashboard snapshot and pushes it to
// the notification sink. Compute must be deterministic and side-effect-free;
// Publish is fire-and-forget and must not fail the pass.
type Publisher interface {
	Compute(l *ledger.Ledger, month time.Time, partnerBalance decimal.Decimal, now time.Time) *models.MonthlySnapshot
	Publish(ctx context.Context, snap *models.MonthlySnapshot)
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Processed int
	Failed    int
	Skipped   int

	// TableUnavailable and PartnerUnavailable report a source outage during
	// the pass. The affected side's work is deferred to a later pass; the
	// other side still converges.
	TableUnavailable   bool
	PartnerUnavailable bool

	PartnerBalance decimal.Decimal
	Duration       time.Duration
}

// Config wires an Engine. All fields except Workers, LeaseTTL and
// DefaultVendor are required.
type Config struct {
	Store     storage.Store
	Table     source.RecordTable
	Partner   source.Partner
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Workers bounds concurrent per-record mutation work. Defaults to 4.
	Workers int

	// LeaseTTL is how long the pass lease is held before a stalled pass
	// can be taken over. Defaults to 5 minutes.
	LeaseTTL time.Duration

	// DefaultVendor prefixes partner descriptions that carry no vendor
	// component. Defaults to "Splitwise".
	DefaultVendor string
}

// Engine runs reconciliation passes. Passes are serialized by a lease in the
// mirror, so a single Engine value may be invoked from the scheduler and the
// on-demand trigger concurrently.
type Engine struct {
	store     storage.Store
	table     source.RecordTable
	partner   source.Partner
	publisher Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger

	workers       int
	leaseTTL      time.Duration
	defaultVendor string

	now func() time.Time
}

// New validates the config and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Table == nil || cfg.Partner == nil {
		return nil, errors.New("engine: store, table and partner are required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("engine: publisher is required")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("engine: metrics are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.DefaultVendor == "" {
		cfg.DefaultVendor = "Splitwise"
	}
	return &Engine{
		store:         cfg.Store,
		table:         cfg.Table,
		partner:       cfg.Partner,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
		workers:       cfg.Workers,
		leaseTTL:      cfg.LeaseTTL,
		defaultVendor: cfg.DefaultVendor,
		now:           time.Now,
	}, nil
}

// passState is the mutable state of one pass. The mutex guards the ledger
// and the counters; worker goroutines mutate both.
type passState struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	parser *parse.Parser
	result PassResult
}

func (s *passState) processed() { s.mu.Lock(); s.result.Processed++; s.mu.Unlock() }
func (s *passState) failed()    { s.mu.Lock(); s.result.Failed++; s.mu.Unlock() }
func (s *passState) skipped()   { s.mu.Lock(); s.result.Skipped++; s.mu.Unlock() }

// RunPass executes one fully-contained reconciliation pass and returns its
// summary. It fails with ErrLockContention when another pass holds the
// lease; source outages and per-record failures are reported through the
// result, not the error return.
func (e *Engine) RunPass(ctx context.Context) (*PassResult, error) {
	start := e.now()

	// A fresh holder identity per pass: the lease store lets a holder
	// re-acquire its own lease, so reusing one identity would let two
	// passes of the same process run concurrently.
	holder := uuid.NewString()
	ok, err := e.store.AcquireLease(ctx, leaseName, holder, e.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire pass lease: %w", err)
	}
	if !ok {
		e.metrics.LockContention()
		return nil, ErrLockContention
	}
	defer func() {
		if err := e.store.ReleaseLease(context.WithoutCancel(ctx), leaseName, holder); err != nil {
			e.log.Error("Failed to release pass lease", "error", err)
		}
	}()

	watermark, err := e.store.PartnerWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("read partner watermark: %w", err)
	}

	// The two source reads are independent; fetch them concurrently.
	var (
		wg         sync.WaitGroup
		pending    []models.Record
		changed    []models.PartnerExpense
		balance    decimal.Decimal
		pendingErr error
		changedErr error
		balanceErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pending, pendingErr = e.table.ListPending(ctx)
	}()
	go func() {
		defer wg.Done()
		changed, changedErr = e.partner.ListChanged(ctx, watermark)
		balance, balanceErr = e.partner.Balance(ctx)
	}()
	wg.Wait()

	if pendingErr != nil {
		// A table outage defers table-side work to the next pass; partner
		// changes are still mirrored and the dashboard still publishes.
		e.log.Warn("Record table unavailable, skipping table sync", "error", pendingErr)
		pending = nil
	}
	if changedErr != nil {
		e.log.Warn("Partner ledger unavailable, skipping partner sync", "error", changedErr)
		changed = nil
	}
	if balanceErr != nil {
		e.log.Warn("Partner balance unavailable, using last known", "error", balanceErr)
		balance = e.lastKnownBalance(ctx)
	}

	// Mirrored expenses sit past the watermark, so a materialization an
	// earlier pass started but never linked would otherwise be lost.
	unlinked, err := e.store.ListUnlinkedPartnerExpenses(ctx)
	if err != nil {
		e.log.Error("Failed to list unlinked partner expenses", "error", err)
	} else {
		changed = mergeUnlinked(unlinked, changed)
	}

	state, err := e.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	state.result.TableUnavailable = pendingErr != nil
	state.result.PartnerUnavailable = changedErr != nil
	state.result.PartnerBalance = balance

	newRecords, deletions := partition(pending)
	e.processRecords(ctx, state, newRecords, deletions)
	e.syncPartner(ctx, state, changed)
	e.publish(ctx, state, balance)

	state.result.Duration = e.now().Sub(start)
	e.metrics.PassCompleted(state.result.Processed, state.result.Failed, state.result.Skipped, state.result.Duration)
	e.metrics.SetPartnerBalance(balance.InexactFloat64())
	e.log.Info("Pass complete",
		"processed", state.result.Processed,
		"failed", state.result.Failed,
		"skipped", state.result.Skipped,
		"duration", state.result.Duration)
	return &state.result, nil
}

// rebuild loads accounts and replays every active mirror record into a
// fresh ledger, so balances always equal starting balance plus the in-force
// deltas regardless of what earlier passes persisted.
func (e *Engine) rebuild(ctx context.Context) (*passState, error) {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	parser, err := parse.New(accounts)
	if err != nil {
		return nil, fmt.Errorf("build parser: %w", err)
	}
	led, err := ledger.New(accounts)
	if err != nil {
		return nil, fmt.Errorf("build ledger: %w", err)
	}

	active, err := e.store.ListActiveRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active records: %w", err)
	}
	for i := range active {
		rec := &active[i]
		intent, err := parser.Parse(rec.Transaction, rec.Category, rec.Amount)
		if err != nil {
			// An account rename can orphan a previously valid record.
			// Its effect drops out of the rebuilt ledger until fixed.
			e.log.Warn("Mirrored record no longer parses", "record_id", rec.ID, "error", err)
			continue
		}
		if _, err := led.Apply(rec.ID, rec.Date, rec.Category, intent, rec.Amount); err != nil {
			e.log.Warn("Failed to replay mirrored record", "record_id", rec.ID, "error", err)
		}
	}
	return &passState{ledger: led, parser: parser}, nil
}

// mergeUnlinked folds stalled materializations into the change set, ahead of
// the fresh changes. A fresh change for the same expense wins: it carries the
// newer partner-side state.
func mergeUnlinked(unlinked, changed []models.PartnerExpense) []models.PartnerExpense {
	if len(unlinked) == 0 {
		return changed
	}
	seen := make(map[int64]bool, len(changed))
	for _, exp := range changed {
		seen[exp.ID] = true
	}
	merged := make([]models.PartnerExpense, 0, len(unlinked)+len(changed))
	for _, exp := range unlinked {
		if !seen[exp.ID] {
			merged = append(merged, exp)
		}
	}
	return append(merged, changed...)
}

// partition splits pending records into new imports and pending deletions,
// preserving the oldest-modified-first order within each group.
func partition(pending []models.Record) (newRecords, deletions []models.Record) {
	for _, rec := range pending {
		if rec.Deleted {
			deletions = append(deletions, rec)
		} else {
			newRecords = append(newRecords, rec)
		}
	}
	return newRecords, deletions
}

// processRecords runs the per-record mutation steps over a bounded worker
// pool. Records are dispatched oldest-first; cancellation is checked between
// records so no record is left half-applied.
func (e *Engine) processRecords(ctx context.Context, state *passState, newRecords, deletions []models.Record) {
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	dispatch := func(rec models.Record, work func(context.Context, *passState, *models.Record)) {
		if ctx.Err() != nil {
			state.skipped()
			return
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			work(ctx, state, &rec)
		}()
	}

	for _, rec := range newRecords {
		dispatch(rec, e.processNew)
	}
	for _, rec := range deletions {
		dispatch(rec, e.processDeletion)
	}
	wg.Wait()
}

// processNew imports one record: parse, mirror write with
// the imported marker, ledger apply, optional partner expense creation, then
// the source import mark. The source mark comes last so a crash trades an
// extra retry for the at-most-once ledger effect the mirror marker gives.
func (e *Engine) processNew(ctx context.Context, state *passState, rec *models.Record) {
	logger := e.log.With("record_id", rec.ID)

	intent, err := state.parser.Parse(rec.Transaction, rec.Category, rec.Amount)
	if err != nil {
		if errors.Is(err, parse.ErrUnparseable) {
			e.annotate(ctx, rec.ID, err)
			state.skipped()
			return
		}
		logger.Error("Failed to parse record", "error", err)
		state.failed()
		return
	}

	// ImportRecord hydrates the record from the mirror on the already-mirrored
	// path, so a partner link committed by an interrupted earlier pass is
	// visible before the create branch below.
	sourceLink := rec.SplitwiseID
	already, err := e.store.ImportRecord(ctx, rec)
	if err != nil {
		logger.Error("Failed to mirror record", "error", err)
		state.failed()
		return
	}

	state.mu.Lock()
	if already {
		// The rebuild replayed whatever the mirror held before this pass;
		// reapplying swaps in the current content, so an edited-and-resubmitted
		// record converges without waiting for the next rebuild.
		err = state.ledger.Reapply(rec.ID, rec.Date, rec.Category, intent, rec.Amount)
	} else {
		_, err = state.ledger.Apply(rec.ID, rec.Date, rec.Category, intent, rec.Amount)
	}
	state.mu.Unlock()
	if err != nil {
		logger.Error("Failed to apply record to ledger", "error", err)
		state.failed()
		return
	}
	if already {
		logger.Debug("Record already mirrored, resuming source-side steps")
	}
	importedAt := e.now().UTC()
	if rec.ImportedAt != nil {
		importedAt = *rec.ImportedAt
	}

	if rec.Splitwise && !rec.PartnerOrigin && rec.SplitwiseID == nil {
		if err := e.createPartnerExpense(ctx, rec, intent); err != nil {
			// The mirror write is committed; only this step retries.
			logger.Warn("Failed to push expense to partner", "error", err)
			state.failed()
			return
		}
	} else if rec.SplitwiseID != nil && sourceLink == nil && already {
		// The expense exists and the mirror holds the link; only the source
		// write-back was interrupted. Finish it instead of creating again.
		if err := e.table.Update(ctx, rec); err != nil {
			logger.Warn("Failed to write partner link to source", "error", err)
			state.failed()
			return
		}
	}

	if err := e.table.MarkImported(ctx, rec.ID, importedAt); err != nil {
		logger.Warn("Failed to mark record imported at source", "error", err)
		state.failed()
		return
	}
	state.processed()
}

// createPartnerExpense pushes the full cost to the partner service with an
// equal split, then records the assigned id in the mirror and at the source.
func (e *Engine) createPartnerExpense(ctx context.Context, rec *models.Record, intent *parse.Intent) error {
	desc := intent.Vendor
	if intent.Description != "" {
		desc += parse.Delimiter + intent.Description
	}
	exp, err := e.partner.CreateExpense(ctx, rec.Amount, desc, rec.Date)
	if err != nil {
		return fmt.Errorf("create partner expense: %w", err)
	}

	exp.RecordID = &rec.ID
	if err := e.store.UpsertPartnerExpense(ctx, exp); err != nil {
		return fmt.Errorf("mirror partner expense %d: %w", exp.ID, err)
	}
	if err := e.store.SetRecordSplitwiseID(ctx, rec.ID, exp.ID); err != nil {
		return fmt.Errorf("link record to partner expense %d: %w", exp.ID, err)
	}
	rec.SplitwiseID = &exp.ID
	if err := e.table.Update(ctx, rec); err != nil {
		return fmt.Errorf("write partner link to source: %w", err)
	}
	return nil
}

// processDeletion handles one pending deletion: reverse the ledger
// effect, retire the mirror row, delete the linked partner expense and
// acknowledge at the source. Every step is idempotent so a crash mid-way
// replays cleanly next pass.
func (e *Engine) processDeletion(ctx context.Context, state *passState, rec *models.Record) {
	logger := e.log.With("record_id", rec.ID)

	mirrored, err := e.store.GetRecord(ctx, rec.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("Failed to load mirrored record", "error", err)
		state.failed()
		return
	}

	if mirrored != nil {
		state.mu.Lock()
		state.ledger.Reverse(rec.ID)
		state.mu.Unlock()

		if _, err := e.store.RetireRecord(ctx, rec.ID); err != nil {
			logger.Error("Failed to retire mirrored record", "error", err)
			state.failed()
			return
		}

		if mirrored.SplitwiseID != nil {
			if err := e.deletePartnerExpense(ctx, *mirrored.SplitwiseID); err != nil {
				logger.Warn("Failed to delete partner expense", "splitwise_id", *mirrored.SplitwiseID, "error", err)
				state.failed()
				return
			}
		}
	}

	if err := e.table.AcknowledgeDelete(ctx, rec.ID); err != nil {
		logger.Warn("Failed to acknowledge deletion at source", "error", err)
		state.failed()
		return
	}
	state.processed()
}

// deletePartnerExpense removes the expense on the partner side and marks the
// mirror row deleted. A partner-side rejection means the expense is already
// gone there; the mirror is still marked.
func (e *Engine) deletePartnerExpense(ctx context.Context, splitwiseID int64) error {
	if err := e.partner.DeleteExpense(ctx, splitwiseID); err != nil && !errors.Is(err, source.ErrRejected) {
		return err
	}
	exp, err := e.store.GetPartnerExpense(ctx, splitwiseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	exp.Deleted = true
	return e.store.UpsertPartnerExpense(ctx, exp)
}

// syncPartner mirrors partner-ledger changes and materializes expenses this
// engine did not originate as records at the
// source and in the mirror. Payments (settle-ups) are mirrored but never
// materialized.
func (e *Engine) syncPartner(ctx context.Context, state *passState, changed []models.PartnerExpense) {
	for i := range changed {
		if ctx.Err() != nil {
			state.skipped()
			continue
		}
		exp := changed[i]
		logger := e.log.With("splitwise_id", exp.ID)

		existing, err := e.store.GetPartnerExpense(ctx, exp.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Error("Failed to load mirrored partner expense", "error", err)
			state.failed()
			continue
		}
		if existing != nil && existing.RecordID != nil {
			exp.RecordID = existing.RecordID
		}

		if err := e.store.UpsertPartnerExpense(ctx, &exp); err != nil {
			logger.Error("Failed to mirror partner expense", "error", err)
			state.failed()
			continue
		}

		switch {
		case exp.Payment:
			// Settle-ups move money between people, not between accounts.
		case exp.Deleted:
			if exp.RecordID != nil {
				e.retirePartnerOrigin(ctx, state, *exp.RecordID, logger)
			}
		case exp.RecordID == nil:
			e.materialize(ctx, state, &exp, logger)
		}
	}
}

// materialize creates a synthetic record at the source for a
// partner-originated expense, then mirrors and applies it. The record
// carries the partner-origin flag so the splitwise-creation branch never
// pushes it back.
func (e *Engine) materialize(ctx context.Context, state *passState, exp *models.PartnerExpense, logger *slog.Logger) {
	splitwiseID := exp.ID
	now := e.now().UTC()
	rec := &models.Record{
		Date:          exp.Date,
		Amount:        exp.TransactionBalance,
		Transaction:   parse.PartnerDescription(exp.Description, e.defaultVendor),
		Category:      models.CategorySplitwise,
		Splitwise:     true,
		SplitwiseID:   &splitwiseID,
		PartnerOrigin: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	intent, err := state.parser.Parse(rec.Transaction, rec.Category, rec.Amount)
	if err != nil {
		logger.Error("Partner expense does not parse", "error", err)
		state.skipped()
		return
	}

	id, err := e.table.Create(ctx, rec)
	if err != nil {
		logger.Warn("Failed to create record at source", "error", err)
		state.failed()
		return
	}
	rec.ID = id

	// Link the expense to its record first, so a crash from here on resumes
	// instead of materializing a duplicate.
	exp.RecordID = &rec.ID
	if err := e.store.UpsertPartnerExpense(ctx, exp); err != nil {
		logger.Error("Failed to link partner expense to record", "error", err)
		state.failed()
		return
	}

	if _, err := e.store.ImportRecord(ctx, rec); err != nil {
		logger.Error("Failed to mirror partner-originated record", "error", err)
		state.failed()
		return
	}

	state.mu.Lock()
	_, applyErr := state.ledger.Apply(rec.ID, rec.Date, rec.Category, intent, rec.Amount)
	state.mu.Unlock()
	if applyErr != nil {
		logger.Error("Failed to apply partner-originated record", "error", applyErr)
		state.failed()
		return
	}

	if err := e.table.MarkImported(ctx, rec.ID, *rec.ImportedAt); err != nil {
		logger.Warn("Failed to mark record imported at source", "error", err)
		state.failed()
		return
	}
	state.processed()
}

// retirePartnerOrigin propagates a partner-side deletion back through the
// mirror and the source, but only for records this engine materialized.
// Partner-side edits to expenses we pushed are out of scope; their records
// stay authoritative at the table.
func (e *Engine) retirePartnerOrigin(ctx context.Context, state *passState, recordID string, logger *slog.Logger) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Error("Failed to load linked record", "record_id", recordID, "error", err)
		state.failed()
		return
	}
	if !rec.PartnerOrigin || rec.Deleted {
		return
	}

	state.mu.Lock()
	state.ledger.Reverse(rec.ID)
	state.mu.Unlock()

	if _, err := e.store.RetireRecord(ctx, rec.ID); err != nil {
		logger.Error("Failed to retire linked record", "record_id", rec.ID, "error", err)
		state.failed()
		return
	}

	rec.Deleted = true
	if err := e.table.Update(ctx, rec); err != nil {
		logger.Warn("Failed to flag record deleted at source", "record_id", rec.ID, "error", err)
		state.failed()
		return
	}
	if err := e.table.AcknowledgeDelete(ctx, rec.ID); err != nil {
		logger.Warn("Failed to acknowledge deletion at source", "record_id", rec.ID, "error", err)
		state.failed()
		return
	}
	state.processed()
}

// publish persists the rebuilt balances, recomputes the monthly snapshot
// and hands it to the sink. Sink failures never fail the pass.
func (e *Engine) publish(ctx context.Context, state *passState, balance decimal.Decimal) {
	if err := state.ledger.CheckConservation(); err != nil {
		e.log.Error("Ledger conservation check failed", "error", err)
	}
	if err := e.store.SaveAccounts(ctx, state.ledger.Accounts()); err != nil {
		e.log.Error("Failed to persist account balances", "error", err)
	}

	now := e.now().UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	snap := e.publisher.Compute(state.ledger, month, balance, now)
	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		e.log.Error("Failed to persist snapshot", "error", err)
		return
	}
	e.publisher.Publish(ctx, snap)
}

// annotate flags a poison record at the source so it stops retrying and a
// human can fix it.
func (e *Engine) annotate(ctx context.Context, id string, cause error) {
	e.log.Warn("Annotating unprocessable record", "record_id", id, "error", cause)
	if err := e.table.Annotate(ctx, id, cause.Error()); err != nil {
		e.log.Error("Failed to annotate record at source", "record_id", id, "error", err)
	}
}

// lastKnownBalance falls back to the most recent snapshot's partner balance.
func (e *Engine) lastKnownBalance(ctx context.Context) decimal.Decimal {
	snap, err := e.store.LatestSnapshot(ctx)
	if err != nil {
		return decimal.Zero
	}
	return snap.PartnerBalance
}
