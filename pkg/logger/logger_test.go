// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, &buf, FormatSimple)

	log.Info("Stored asset version", "asset", "banner", "version", 2)
	log.Debug("hidden")

	assert.Equal(t, "INFO Stored asset version asset=banner version=2\n", buf.String())
}

func TestSimpleFormat_KeepsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelDebug, &buf, FormatSimple).With("session", "s-1").WithGroup("run")

	log.Warn("stalled", "attempt", 3)

	assert.Equal(t, "WARN stalled session=s-1 run.attempt=3\n", buf.String())
}

func TestVerboseFormat_HasTimestamp(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, FormatVerbose).Error("failed")

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "ERROR failed\n"), line)
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} `, line)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, FormatJSON).Info("done", "stop_reason", "Accepted")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "done", rec["msg"])
	assert.Equal(t, "Accepted", rec["stop_reason"])
}

func TestOpenLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postforge.log")
	f, cleanup, err := OpenLogFile(path)
	require.NoError(t, err)
	defer cleanup()

	Init(slog.LevelInfo, f, FormatSimple)
	assert.NotNil(t, GetLogger())
}
