package backup

import (
	"context"
	"errors"
	"time"

	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/faults"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
	"go.uber.org/zap"
)

var (
	errMissingJournal  = errors.New("journal store is required")
	errMissingChat     = errors.New("chat store is required")
	errMissingCheckins = errors.New("checkin store is required")
	errMissingAnalyses = errors.New("analysis store is required")
	noOpLogger         = zap.NewNop()
)

const (
	opOrchestratorNew = "backup.orchestrator.new"
	opExport          = "backup.export"
	opRestore         = "backup.restore"
	opClearAll        = "backup.clear_all"
)

// JournalStore is the slice of the journal service the orchestrator composes.
type JournalStore interface {
	ListAll(ctx context.Context) ([]journal.Entry, error)
	BulkInsert(ctx context.Context, entries []journal.Entry) error
	ClearAll(ctx context.Context) error
}

// ChatStore is the slice of the chat service the orchestrator composes.
type ChatStore interface {
	ListAllSessions(ctx context.Context) ([]chat.Session, error)
	ListAllMessages(ctx context.Context) ([]chat.Message, error)
	BulkInsertSessions(ctx context.Context, sessions []chat.Session) error
	BulkInsertMessages(ctx context.Context, messages []chat.Message) error
	ClearAll(ctx context.Context) error
}

// CheckinStore is the slice of the check-in service the orchestrator composes.
type CheckinStore interface {
	ListAll(ctx context.Context) ([]checkin.Checkin, error)
	BulkInsert(ctx context.Context, rows []checkin.Checkin) error
	ClearAll(ctx context.Context) error
}

// AnalysisStore is the slice of the analysis service the orchestrator composes.
type AnalysisStore interface {
	ListAllEmotion(ctx context.Context) ([]analysis.EmotionAnalysis, error)
	ListAllSkin(ctx context.Context) ([]analysis.SkinAnalysis, error)
	ListAllMenstrualNotes(ctx context.Context) ([]analysis.MenstrualNote, error)
	BulkInsertEmotion(ctx context.Context, rows []analysis.EmotionAnalysis) error
	BulkInsertSkin(ctx context.Context, rows []analysis.SkinAnalysis) error
	BulkInsertMenstrualNotes(ctx context.Context, rows []analysis.MenstrualNote) error
	ClearAll(ctx context.Context) error
}

// OrchestratorConfig describes the per-entity services the orchestrator
// composes. It owns no entity data itself.
type OrchestratorConfig struct {
	Journal  JournalStore
	Chat     ChatStore
	Checkins CheckinStore
	Analyses AnalysisStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Orchestrator assembles full-store snapshots and applies them back.
type Orchestrator struct {
	journal  JournalStore
	chat     ChatStore
	checkins CheckinStore
	analyses AnalysisStore
	clock    func() time.Time
	logger   *zap.Logger
}

// NewOrchestrator constructs the backup orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Journal == nil {
		return nil, faults.New(opOrchestratorNew, "missing_journal", errMissingJournal)
	}
	if cfg.Chat == nil {
		return nil, faults.New(opOrchestratorNew, "missing_chat", errMissingChat)
	}
	if cfg.Checkins == nil {
		return nil, faults.New(opOrchestratorNew, "missing_checkins", errMissingCheckins)
	}
	if cfg.Analyses == nil {
		return nil, faults.New(opOrchestratorNew, "missing_analyses", errMissingAnalyses)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Orchestrator{
		journal:  cfg.Journal,
		chat:     cfg.Chat,
		checkins: cfg.Checkins,
		analyses: cfg.Analyses,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Export assembles one snapshot of every collection. Any sub-fetch failure
// fails the whole export; a snapshot missing a collection is worse than none.
func (o *Orchestrator) Export(ctx context.Context) (Snapshot, error) {
	entries, err := o.journal.ListAll(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "journal_fetch_failed", err)
	}
	sessions, err := o.chat.ListAllSessions(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "session_fetch_failed", err)
	}
	messages, err := o.chat.ListAllMessages(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "message_fetch_failed", err)
	}
	checkins, err := o.checkins.ListAll(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "checkin_fetch_failed", err)
	}
	emotions, err := o.analyses.ListAllEmotion(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "emotion_fetch_failed", err)
	}
	skins, err := o.analyses.ListAllSkin(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "skin_fetch_failed", err)
	}
	menstrual, err := o.analyses.ListAllMenstrualNotes(ctx)
	if err != nil {
		return Snapshot{}, faults.New(opExport, "menstrual_fetch_failed", err)
	}

	snapshot := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: o.clock().UTC().Format(time.RFC3339),
		Data: SnapshotData{
			JournalEntries:  entries,
			ChatSessions:    sessions,
			ChatMessages:    messages,
			DailyCheckins:   checkins,
			EmotionAnalyses: emotions,
			SkinAnalyses:    skins,
			MenstrualNotes:  menstrual,
		},
	}

	o.logger.Info("snapshot exported",
		zap.Int("journal_entries", len(entries)),
		zap.Int("chat_sessions", len(sessions)),
		zap.Int("chat_messages", len(messages)),
		zap.Int("daily_checkins", len(checkins)),
		zap.Int("emotion_analyses", len(emotions)),
		zap.Int("skin_analyses", len(skins)),
		zap.Int("menstrual_notes", len(menstrual)))

	return snapshot, nil
}

// Restore applies a snapshot. The version guard runs before any write, so a
// too-new snapshot leaves the store untouched. Bulk inserts use
// insert-or-replace, which makes restoring the same snapshot twice idempotent.
func (o *Orchestrator) Restore(ctx context.Context, snapshot Snapshot) (RestoreCounts, error) {
	if err := snapshot.ValidateVersion(); err != nil {
		return RestoreCounts{}, faults.New(opRestore, "unsupported_version", err)
	}

	counts := RestoreCounts{}

	if len(snapshot.Data.JournalEntries) > 0 {
		if err := o.journal.BulkInsert(ctx, snapshot.Data.JournalEntries); err != nil {
			return counts, faults.New(opRestore, "journal_insert_failed", err)
		}
		counts.JournalEntries = len(snapshot.Data.JournalEntries)
	}
	if len(snapshot.Data.ChatSessions) > 0 {
		if err := o.chat.BulkInsertSessions(ctx, snapshot.Data.ChatSessions); err != nil {
			return counts, faults.New(opRestore, "session_insert_failed", err)
		}
		counts.ChatSessions = len(snapshot.Data.ChatSessions)
	}
	if len(snapshot.Data.ChatMessages) > 0 {
		if err := o.chat.BulkInsertMessages(ctx, snapshot.Data.ChatMessages); err != nil {
			return counts, faults.New(opRestore, "message_insert_failed", err)
		}
		counts.ChatMessages = len(snapshot.Data.ChatMessages)
	}
	if len(snapshot.Data.DailyCheckins) > 0 {
		if err := o.checkins.BulkInsert(ctx, snapshot.Data.DailyCheckins); err != nil {
			return counts, faults.New(opRestore, "checkin_insert_failed", err)
		}
		counts.DailyCheckins = len(snapshot.Data.DailyCheckins)
	}
	if len(snapshot.Data.EmotionAnalyses) > 0 {
		if err := o.analyses.BulkInsertEmotion(ctx, snapshot.Data.EmotionAnalyses); err != nil {
			return counts, faults.New(opRestore, "emotion_insert_failed", err)
		}
		counts.EmotionAnalyses = len(snapshot.Data.EmotionAnalyses)
	}
	if len(snapshot.Data.SkinAnalyses) > 0 {
		if err := o.analyses.BulkInsertSkin(ctx, snapshot.Data.SkinAnalyses); err != nil {
			return counts, faults.New(opRestore, "skin_insert_failed", err)
		}
		counts.SkinAnalyses = len(snapshot.Data.SkinAnalyses)
	}
	if len(snapshot.Data.MenstrualNotes) > 0 {
		if err := o.analyses.BulkInsertMenstrualNotes(ctx, snapshot.Data.MenstrualNotes); err != nil {
			return counts, faults.New(opRestore, "menstrual_insert_failed", err)
		}
		counts.MenstrualNotes = len(snapshot.Data.MenstrualNotes)
	}

	o.logger.Info("snapshot restored", zap.Int("snapshot_version", snapshot.Version))
	return counts, nil
}

// ClearAll wipes every collection, one service at a time. The clears are
// deliberately sequential and not wrapped in a cross-service transaction; a
// failure partway leaves whatever later services still hold, and the caller
// is expected to retry the whole operation.
func (o *Orchestrator) ClearAll(ctx context.Context) error {
	if err := o.journal.ClearAll(ctx); err != nil {
		return faults.New(opClearAll, "journal_clear_failed", err)
	}
	if err := o.chat.ClearAll(ctx); err != nil {
		return faults.New(opClearAll, "chat_clear_failed", err)
	}
	if err := o.checkins.ClearAll(ctx); err != nil {
		return faults.New(opClearAll, "checkin_clear_failed", err)
	}
	if err := o.analyses.ClearAll(ctx); err != nil {
		return faults.New(opClearAll, "analysis_clear_failed", err)
	}
	o.logger.Info("all local data cleared")
	return nil
}
