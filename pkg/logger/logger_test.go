package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	mu.Lock()
	orig := logger
	logger = zerolog.New(&buf)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		logger = orig
		mu.Unlock()
		Init("info")
	})
	return &buf
}

func TestInitParsesLevels(t *testing.T) {
	t.Cleanup(func() { Init("info") })
	for in, want := range map[string]string{
		"debug":    "debug",
		" WARN ":   "warn",
		"warning":  "warn",
		"Error":    "error",
		"fatal":    "fatal",
		"nonsense": "info",
		"":         "info",
	} {
		Init(in)
		require.Equal(t, want, LevelString(), "input %q", in)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	Init("warn")
	Debugf("debug-%d", 1)
	Infof("info-%d", 2)
	Warnf("warn-%d", 3)
	Errorf("error-%d", 4)

	out := buf.String()
	require.NotContains(t, out, "debug-1")
	require.NotContains(t, out, "info-2")
	require.Contains(t, out, "warn-3")
	require.Contains(t, out, "error-4")
}

func TestAuditFields(t *testing.T) {
	buf := capture(t)
	Audit("slash", map[string]string{"notary": "0xabc", "reason": "DOUBLE_NOTARIZATION"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	require.Equal(t, "slash", line["audit"])
	require.Equal(t, "0xabc", line["notary"])
	require.Equal(t, "DOUBLE_NOTARIZATION", line["reason"])
	require.Equal(t, "info", line["level"])
}

func TestAuditSuppressedAboveInfo(t *testing.T) {
	buf := capture(t)
	Init("error")
	Audit("slash", map[string]string{"notary": "0xabc"})
	require.Empty(t, buf.String())
}
