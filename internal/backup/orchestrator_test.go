package backup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
)

type sequentialIDGenerator struct {
	prefix string
	next   int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type fixture struct {
	orchestrator *Orchestrator
	journal      *journal.Service
	chat         *chat.Service
	checkins     *checkin.Service
	analyses     *analysis.Service
	db           *gorm.DB
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:backup_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&journal.Entry{},
		&chat.Session{}, &chat.Message{},
		&checkin.Checkin{},
		&analysis.EmotionAnalysis{}, &analysis.SkinAnalysis{}, &analysis.MenstrualNote{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	journalService, err := journal.NewService(journal.ServiceConfig{
		Database: db, Clock: clock, IDProvider: &sequentialIDGenerator{prefix: "journal"},
	})
	if err != nil {
		t.Fatalf("journal service: %v", err)
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database: db, Clock: clock, IDProvider: &sequentialIDGenerator{prefix: "chat"},
	})
	if err != nil {
		t.Fatalf("chat service: %v", err)
	}
	checkinService, err := checkin.NewService(checkin.ServiceConfig{
		Database: db, Clock: clock, IDProvider: &sequentialIDGenerator{prefix: "checkin"},
	})
	if err != nil {
		t.Fatalf("checkin service: %v", err)
	}
	analysisService, err := analysis.NewService(analysis.ServiceConfig{
		Database: db, Clock: clock, IDProvider: &sequentialIDGenerator{prefix: "analysis"},
	})
	if err != nil {
		t.Fatalf("analysis service: %v", err)
	}

	orchestrator, err := NewOrchestrator(OrchestratorConfig{
		Journal:  journalService,
		Chat:     chatService,
		Checkins: checkinService,
		Analyses: analysisService,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	return fixture{
		orchestrator: orchestrator,
		journal:      journalService,
		chat:         chatService,
		checkins:     checkinService,
		analyses:     analysisService,
		db:           db,
	}
}

func (f fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	content := "journal text"
	if _, err := f.journal.Upsert(ctx, journal.UpsertInput{
		EntryDate: mustDate(t, "2026-03-14"),
		Content:   &content,
	}); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	session, err := f.chat.CreateSession(ctx, "seeded session")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if _, err := f.chat.AppendMessage(ctx, chat.AppendInput{
		SessionID: session.ID,
		Role:      chat.RoleUser,
		Content:   "hello",
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	mood := 4
	if _, err := f.checkins.Upsert(ctx, checkin.UpsertInput{
		Date:      "2026-03-14",
		MoodScore: &mood,
	}); err != nil {
		t.Fatalf("seed checkin: %v", err)
	}

	if _, err := f.analyses.RecordEmotion(ctx, analysis.EmotionInput{
		Date: "2026-03-14", Valence: 0.2, Arousal: 0.4, Confidence: 0.8,
	}); err != nil {
		t.Fatalf("seed emotion: %v", err)
	}
	if _, err := f.analyses.RecordSkin(ctx, analysis.SkinInput{
		Date: "2026-03-14", Hydration: 60, Oiliness: 40, Texture: 55, Pigmentation: 45, OverallScore: 50,
	}); err != nil {
		t.Fatalf("seed skin: %v", err)
	}
	note := "seeded note"
	if _, err := f.analyses.UpsertMenstrualNote(ctx, analysis.MenstrualUpsertInput{
		Date: "2026-03-14", Note: &note, Symptoms: []string{"cramps"},
	}); err != nil {
		t.Fatalf("seed menstrual note: %v", err)
	}
}

func mustDate(t *testing.T, value string) journal.EntryDate {
	t.Helper()
	date, err := journal.NewEntryDate(value)
	if err != nil {
		t.Fatalf("entry date: %v", err)
	}
	return date
}

func (f fixture) tableCounts(t *testing.T) map[string]int64 {
	t.Helper()
	counts := map[string]int64{}
	for _, table := range []string{
		"journal_entries", "chat_sessions", "chat_messages", "daily_checkins",
		"emotion_analyses", "skin_analyses", "menstrual_notes",
	} {
		var count int64
		if err := f.db.Table(table).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		counts[table] = count
	}
	return counts
}

func TestExportCapturesEveryCollection(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	snapshot, err := f.orchestrator.Export(context.Background())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if snapshot.Version != SnapshotVersion {
		t.Fatalf("unexpected version %d", snapshot.Version)
	}
	if snapshot.ExportedAt == "" {
		t.Fatalf("exported_at not stamped")
	}
	if len(snapshot.Data.JournalEntries) != 1 ||
		len(snapshot.Data.ChatSessions) != 1 ||
		len(snapshot.Data.ChatMessages) != 1 ||
		len(snapshot.Data.DailyCheckins) != 1 ||
		len(snapshot.Data.EmotionAnalyses) != 1 ||
		len(snapshot.Data.SkinAnalyses) != 1 ||
		len(snapshot.Data.MenstrualNotes) != 1 {
		t.Fatalf("incomplete snapshot: %+v", snapshot.Data)
	}
}

func TestExportClearRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	snapshot, err := f.orchestrator.Export(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if err := f.orchestrator.ClearAll(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	for table, count := range f.tableCounts(t) {
		if count != 0 {
			t.Fatalf("table %s not cleared: %d rows", table, count)
		}
	}

	counts, err := f.orchestrator.Restore(ctx, snapshot)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if counts.JournalEntries != 1 || counts.ChatMessages != 1 || counts.MenstrualNotes != 1 {
		t.Fatalf("unexpected restore counts: %+v", counts)
	}

	entry, found, err := f.journal.GetByDate(ctx, mustDate(t, "2026-03-14"))
	if err != nil || !found {
		t.Fatalf("journal entry missing after restore: found=%v err=%v", found, err)
	}
	if entry.Content != "journal text" {
		t.Fatalf("journal content mangled: %q", entry.Content)
	}

	sessions, err := f.chat.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "seeded session" {
		t.Fatalf("sessions not restored: %+v", sessions)
	}
	messages, err := f.chat.ListMessages(ctx, sessions[0].ID)
	if err != nil || len(messages) != 1 {
		t.Fatalf("messages not restored: %v / %v", messages, err)
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	snapshot, err := f.orchestrator.Export(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	before := f.tableCounts(t)
	if _, err := f.orchestrator.Restore(ctx, snapshot); err != nil {
		t.Fatalf("first restore failed: %v", err)
	}
	if _, err := f.orchestrator.Restore(ctx, snapshot); err != nil {
		t.Fatalf("second restore failed: %v", err)
	}
	after := f.tableCounts(t)

	for table, count := range before {
		if after[table] != count {
			t.Fatalf("table %s changed size: %d -> %d", table, count, after[table])
		}
	}
}

func TestRestoreDisplacesRowsWrittenAfterExport(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	snapshot, err := f.orchestrator.Export(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	// The device keeps writing after the snapshot was taken: fresh rows with
	// new ids land on the same dates the snapshot covers. Restoring without a
	// preceding clear must still succeed and put the snapshot rows back.
	if err := f.orchestrator.ClearAll(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	f.seed(t)

	counts, err := f.orchestrator.Restore(ctx, snapshot)
	if err != nil {
		t.Fatalf("restore over live rows failed: %v", err)
	}
	if counts.JournalEntries != 1 {
		t.Fatalf("expected 1 restored journal entry, got %d", counts.JournalEntries)
	}

	entry, found, err := f.journal.GetByDate(ctx, mustDate(t, "2026-03-14"))
	if err != nil || !found {
		t.Fatalf("journal lookup after restore: found=%v err=%v", found, err)
	}
	if entry.ID != snapshot.Data.JournalEntries[0].ID {
		t.Fatalf("expected snapshot journal row %q, got %q", snapshot.Data.JournalEntries[0].ID, entry.ID)
	}

	after := f.tableCounts(t)
	for _, table := range []string{"journal_entries", "daily_checkins", "menstrual_notes"} {
		if after[table] != 1 {
			t.Fatalf("table %s holds %d rows for one date, want 1", table, after[table])
		}
	}
}

func TestRestoreRejectsNewerSnapshotBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	before := f.tableCounts(t)

	tooNew := Snapshot{
		Version: 999,
		Data: SnapshotData{
			JournalEntries: []journal.Entry{{
				ID:        "alien-1",
				EntryDate: "2030-01-01",
				Content:   "from the future",
			}},
		},
	}

	_, err := f.orchestrator.Restore(ctx, tooNew)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}

	after := f.tableCounts(t)
	for table, count := range before {
		if after[table] != count {
			t.Fatalf("rejected restore still wrote to %s: %d -> %d", table, count, after[table])
		}
	}
	_, found, err := f.journal.GetByDate(ctx, mustDate(t, "2030-01-01"))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Fatalf("too-new snapshot row leaked into the store")
	}
}

func TestRestoreAcceptsOlderVersions(t *testing.T) {
	f := newFixture(t)

	older := Snapshot{Version: 0}
	if _, err := f.orchestrator.Restore(context.Background(), older); err != nil {
		t.Fatalf("older snapshot should restore cleanly, got %v", err)
	}
}
