package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/auth"
	"github.com/halcyonlabs/halcyon-device/internal/backup"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/cloudsync"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
	"github.com/halcyonlabs/halcyon-device/internal/settings"
)

const testPairingCode = "123456"

type sequentialIDGenerator struct {
	prefix string
	next   int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&journal.Entry{},
		&chat.Session{}, &chat.Message{},
		&checkin.Checkin{},
		&analysis.EmotionAnalysis{}, &analysis.SkinAnalysis{}, &analysis.MenstrualNote{},
		&settings.Setting{},
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
	settingsStore, err := settings.NewStore(settings.StoreConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	orchestrator, err := backup.NewOrchestrator(backup.OrchestratorConfig{
		Journal: journalService, Chat: chatService, Checkins: checkinService, Analyses: analysisService,
		Clock: clock,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	cloudAdapter, err := cloudsync.NewAdapter(cloudsync.AdapterConfig{
		Orchestrator: orchestrator, Settings: settingsStore, Clock: clock,
	})
	if err != nil {
		t.Fatalf("cloud adapter: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "halcyon-device",
		Audience:      "halcyon-api",
		TokenTTL:      time.Hour,
	})

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: tokenManager,
		PairingCode:  testPairingCode,
		Journal:      journalService,
		Chat:         chatService,
		Checkins:     checkinService,
		Analyses:     analysisService,
		Orchestrator: orchestrator,
		Cloud:        cloudAdapter,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func pair(t *testing.T, handler http.Handler) string {
	t.Helper()

	recorder := doRequest(t, handler, http.MethodPost, "/auth/pair", "", gin.H{
		"pairing_code": testPairingCode,
		"client_name":  "test-client",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("pairing failed: %d %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode pairing response: %v", err)
	}
	if response.AccessToken == "" || response.TokenType != "Bearer" {
		t.Fatalf("unexpected pairing response: %+v", response)
	}
	return response.AccessToken
}

func TestPairRejectsWrongCode(t *testing.T) {
	handler := newTestHandler(t)

	recorder := doRequest(t, handler, http.MethodPost, "/auth/pair", "", gin.H{
		"pairing_code": "000000",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	handler := newTestHandler(t)

	recorder := doRequest(t, handler, http.MethodGet, "/journal", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/journal", "not-a-real-token", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus token, got %d", recorder.Code)
	}
}

func TestJournalUpsertAndGetOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPut, "/journal/2026-03-14", token, gin.H{
		"content": "wrote from the client",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("upsert failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodGet, "/journal/2026-03-14", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get failed: %d", recorder.Code)
	}
	var entry journal.Entry
	if err := json.Unmarshal(recorder.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Content != "wrote from the client" {
		t.Fatalf("unexpected content %q", entry.Content)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/journal/2026-03-15", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent date, got %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPut, "/journal/not-a-date", token, gin.H{"content": "x"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", recorder.Code)
	}
}

func TestChatSessionLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPost, "/chat/sessions", token, gin.H{"name": "evening talk"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var session chat.Session
	if err := json.Unmarshal(recorder.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/chat/sessions/"+session.ID+"/messages", token, gin.H{
		"role":    "user",
		"content": "hello there",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("append failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodPost, "/chat/sessions/missing/messages", token, gin.H{
		"role":    "user",
		"content": "into the void",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing session, got %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodDelete, "/chat/sessions/"+session.ID, token, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d", recorder.Code)
	}
	recorder = doRequest(t, handler, http.MethodGet, "/chat/sessions/"+session.ID+"/messages", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("message list failed: %d", recorder.Code)
	}
	var listed struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(listed.Messages) != 0 {
		t.Fatalf("messages survived session delete: %d", len(listed.Messages))
	}
}

func TestCheckinUpsertValidationOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPut, "/checkins/2026-03-14", token, gin.H{
		"mood_score": 9,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range mood, got %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPut, "/checkins/2026-03-14", token, gin.H{
		"mood_score":  4,
		"sleep_hours": 7.5,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("upsert failed: %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestEmotionRecordReportsPersistenceOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPost, "/analyses/emotion", token, gin.H{
		"date":             "2026-03-14",
		"valence":          0.4,
		"arousal":          0.2,
		"confidence":       0.9,
		"dominant_emotion": "content",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("record failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Persisted bool `json:"persisted"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Persisted {
		t.Fatalf("expected persisted analysis")
	}

	recorder = doRequest(t, handler, http.MethodPost, "/analyses/emotion", token, gin.H{
		"date":    "2026-03-14",
		"valence": 3.0,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range valence, got %d", recorder.Code)
	}
}

func TestBackupRoundTripOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPut, "/journal/2026-03-14", token, gin.H{
		"content": "survives the round trip",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("seed failed: %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/backup/export", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("export failed: %d", recorder.Code)
	}
	var snapshot backup.Snapshot
	if err := json.Unmarshal(recorder.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapshot.Data.JournalEntries) != 1 {
		t.Fatalf("snapshot missing journal entry")
	}

	recorder = doRequest(t, handler, http.MethodPost, "/backup/clear", token, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("clear failed: %d", recorder.Code)
	}
	recorder = doRequest(t, handler, http.MethodGet, "/journal/2026-03-14", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after clear, got %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/backup/restore", token, snapshot)
	if recorder.Code != http.StatusOK {
		t.Fatalf("restore failed: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = doRequest(t, handler, http.MethodGet, "/journal/2026-03-14", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("entry missing after restore: %d", recorder.Code)
	}
}

func TestBackupRestoreRejectsNewerSnapshotOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPost, "/backup/restore", token, gin.H{
		"version": 999,
		"data":    gin.H{},
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestCloudEndpointsReportConfigurationState(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodGet, "/cloud/status", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status failed: %d", recorder.Code)
	}
	var status struct {
		Configured bool `json:"configured"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Configured {
		t.Fatalf("fresh install should be unconfigured")
	}

	recorder = doRequest(t, handler, http.MethodPost, "/cloud/backup", token, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 before configuration, got %d", recorder.Code)
	}

	dir := t.TempDir()
	recorder = doRequest(t, handler, http.MethodPost, "/cloud/configure", token, gin.H{
		"provider": "dropbox",
		"uri":      "file://" + dir,
		"path":     dir,
		"platform": "desktop",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("configure failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodPost, "/cloud/backup", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("cloud backup failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodPost, "/cloud/restore", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("cloud restore failed: %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestCloudConfigureRejectsForeignAndroidDirectory(t *testing.T) {
	handler := newTestHandler(t)
	token := pair(t, handler)

	recorder := doRequest(t, handler, http.MethodPost, "/cloud/configure", token, gin.H{
		"provider": "gdrive",
		"uri":      "content://com.example.files/tree/primary",
		"path":     t.TempDir(),
		"platform": "android",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", recorder.Code, recorder.Body.String())
	}
}
