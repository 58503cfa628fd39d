package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogging(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		CloseAll()
		CloseAudit()
		Audit().SetSink(nil)
		configMu.Lock()
		settings = Settings{}
		logsDir = ""
		configMu.Unlock()
	})
}

func TestAllCategoriesLog(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")

	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug"}))
	assert.True(t, IsDebugMode())

	categories := []Category{
		CategoryBoot, CategoryProver, CategoryDetector, CategoryTactile,
		CategoryInstall, CategoryStore, CategoryVerdict, CategoryWatch,
	}
	for _, cat := range categories {
		assert.True(t, IsCategoryEnabled(cat), cat)
		l := Get(cat)
		l.Info("info for %s", cat)
		l.Debug("debug for %s", cat)
		l.With("backend", "z3").Warn("warn for %s", cat)
	}
	Prover("convenience prover log")
	TactileError("convenience tactile log")

	CloseAll()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
				require.NoError(t, err)
				assert.Contains(t, string(content), "info for "+string(cat))
				assert.Contains(t, string(content), "debug for "+string(cat))
			}
		}
		assert.True(t, found, "no log file for %s", cat)
	}
}

func TestDebugModeDisabled(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")

	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))
	assert.False(t, IsCategoryEnabled(CategoryProver))

	Prover("should not be written")
	require.NoError(t, InitAudit())

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "logs dir must not be created in production mode")
}

func TestCategoryFilter(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")

	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"tactile": false},
	}))

	assert.False(t, IsCategoryEnabled(CategoryTactile))
	assert.True(t, IsCategoryEnabled(CategoryProver), "unlisted categories default to enabled")

	Tactile("filtered")
	ProverDebug("below level")
	CloseAll()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "tactile")
		if strings.Contains(entry.Name(), "prover") {
			content, _ := os.ReadFile(filepath.Join(dir, entry.Name()))
			assert.NotContains(t, string(content), "below level")
		}
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	assert.Error(t, Initialize("", Settings{}))
}

func TestAudit_MangleFacts(t *testing.T) {
	event := AuditEvent{
		Timestamp:  10,
		EventType:  AuditProofComplete,
		Backend:    "z3",
		Target:     `f"1`,
		Status:     "success",
		DurationMs: 5,
	}
	assert.Equal(t, `proof_event(10, /proof_complete, /z3, "f\"1", /success, 5).`, event.ToMangleFact())

	probe := AuditEvent{Timestamp: 1, EventType: AuditBackendProbe, Target: "/usr/bin/z3", Success: true}
	assert.Equal(t, `backend_probe(1, /unknown, "/usr/bin/z3", true).`, probe.ToMangleFact())
}

func TestAudit_FileAndSink(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Initialize(dir, Settings{DebugMode: true}))
	require.NoError(t, InitAudit())

	var seen []AuditEvent
	Audit().SetSink(func(e AuditEvent) { seen = append(seen, e) })

	Audit().ProofStart("req-1", "cvc5", "f1")
	Audit().ProofComplete("req-1", "cvc5", "f1", "timeout", 0, "execution timeout")
	CloseAudit()

	require.Len(t, seen, 2)
	assert.Equal(t, AuditProofTimeout, seen[1].EventType)
	assert.False(t, seen[1].Success)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var audit string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "_audit.log") {
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			require.NoError(t, err)
			audit = string(data)
		}
	}
	assert.Contains(t, audit, "proof_event(")
	assert.Contains(t, audit, `"event":"proof_timeout"`)
}
