package backup

import (
	"errors"
	"fmt"

	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
)

// SnapshotVersion is the newest snapshot layout this build can restore.
const SnapshotVersion = 1

// ErrUnsupportedVersion indicates a snapshot produced by a newer build than
// the one restoring it.
var ErrUnsupportedVersion = errors.New("backup: unsupported snapshot version")

// Snapshot is the versioned export document holding every entity collection
// at one point in time. It is both the local export/restore format and the
// cloud backup file payload.
type Snapshot struct {
	Version    int          `json:"version"`
	ExportedAt string       `json:"exported_at"`
	Data       SnapshotData `json:"data"`
}

// SnapshotData nests the exported collections.
type SnapshotData struct {
	JournalEntries  []journal.Entry            `json:"journal_entries"`
	ChatSessions    []chat.Session             `json:"chat_sessions"`
	ChatMessages    []chat.Message             `json:"chat_messages"`
	DailyCheckins   []checkin.Checkin          `json:"daily_checkins"`
	EmotionAnalyses []analysis.EmotionAnalysis `json:"emotion_analyses"`
	SkinAnalyses    []analysis.SkinAnalysis    `json:"skin_analyses"`
	MenstrualNotes  []analysis.MenstrualNote   `json:"menstrual_notes"`
}

// ValidateVersion rejects snapshots newer than this build supports.
func (s Snapshot) ValidateVersion() error {
	if s.Version > SnapshotVersion {
		return fmt.Errorf("%w: snapshot is v%d, supported up to v%d", ErrUnsupportedVersion, s.Version, SnapshotVersion)
	}
	return nil
}

// RestoreCounts reports, per entity collection, how many rows a restore wrote.
type RestoreCounts struct {
	JournalEntries  int `json:"journal_entries"`
	ChatSessions    int `json:"chat_sessions"`
	ChatMessages    int `json:"chat_messages"`
	DailyCheckins   int `json:"daily_checkins"`
	EmotionAnalyses int `json:"emotion_analyses"`
	SkinAnalyses    int `json:"skin_analyses"`
	MenstrualNotes  int `json:"menstrual_notes"`
}
