package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/astrio-ai/legacy2modern/internal/cli/config"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

func sampleManifest() Manifest {
	return Manifest{
		AppVersion: "1.0.0",
		Source:     "./site",
		Analysis: StageResult{
			Summary: engine.ReportSummary{TotalItems: 2, TotalChunks: 1, SuccessfulChunks: 1},
			Payload: engine.Payload{
				Files: map[string]any{
					"index.html": map[string]any{"status": "success"},
				},
				Patterns:     []engine.Pattern{{Name: "navbar", Type: "layout"}},
				Dependencies: map[string][]string{"scripts": {"app.js"}},
			},
		},
	}
}

func TestEncodeManifestJSON(t *testing.T) {
	data, err := encodeManifest(sampleManifest(), "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1.0.0", decoded["appVersion"])
	assert.Contains(t, decoded, "analysis")
}

func TestEncodeManifestYAML(t *testing.T) {
	data, err := encodeManifest(sampleManifest(), "yaml")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "1.0.0", decoded["appVersion"])
}

func TestEncodeManifestTOML(t *testing.T) {
	data, err := encodeManifest(sampleManifest(), "toml")
	require.NoError(t, err)
	assert.Contains(t, string(data), `appVersion = "1.0.0"`)
}

func TestEncodeManifestRejectsUnknownFormat(t *testing.T) {
	_, err := encodeManifest(sampleManifest(), "xml")
	require.Error(t, err)
}

func TestWriteManifestCreatesOutputDir(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "nested", "out")
	opts := config.Options{
		OutputPath:   outDir,
		OutputFormat: "json",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, writeManifest(opts, logger, sampleManifest()))

	data, err := os.ReadFile(filepath.Join(outDir, "manifest.json"))
	require.NoError(t, err)
	var decoded Manifest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, engine.ReportSchemaVersion, decoded.SchemaVersion)
	assert.False(t, decoded.GeneratedAt.IsZero())
}
