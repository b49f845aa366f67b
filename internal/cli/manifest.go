package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/astrio-ai/legacy2modern/internal/cli/config"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

// Manifest is the file written at the end of a run: the merged analysis, the
// optional migration plan, and enough metadata to trace the run.
type Manifest struct {
	SchemaVersion string       `json:"schemaVersion" yaml:"schemaVersion" toml:"schemaVersion"`
	AppVersion    string       `json:"appVersion" yaml:"appVersion" toml:"appVersion"`
	GeneratedAt   time.Time    `json:"generatedAt" yaml:"generatedAt" toml:"generatedAt"`
	Source        string       `json:"source" yaml:"source" toml:"source"`
	Analysis      StageResult  `json:"analysis" yaml:"analysis" toml:"analysis"`
	Plan          *StageResult `json:"plan,omitempty" yaml:"plan,omitempty" toml:"plan,omitempty"`
}

// StageResult is one engine pass in the manifest.
type StageResult struct {
	Summary engine.ReportSummary `json:"summary" yaml:"summary" toml:"summary"`
	Payload engine.Payload       `json:"payload" yaml:"payload" toml:"payload"`
	Failed  []engine.ChunkResult `json:"failedChunks,omitempty" yaml:"failedChunks,omitempty" toml:"failedChunks,omitempty"`
}

// writeManifest encodes the manifest in the configured format and writes it
// to the output directory.
func writeManifest(opts config.Options, logger *slog.Logger, m Manifest) error {
	m.SchemaVersion = engine.ReportSchemaVersion
	m.GeneratedAt = time.Now().UTC()

	data, err := encodeManifest(m, opts.OutputFormat)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.OutputPath, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	target := filepath.Join(opts.OutputPath, "manifest."+opts.OutputFormat)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	logger.Info("Manifest written", slog.String("path", target))
	return nil
}

func encodeManifest(m Manifest, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding manifest as json: %w", err)
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encoding manifest as yaml: %w", err)
		}
		return data, nil
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return nil, fmt.Errorf("encoding manifest as toml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported output format '%s'", format)
	}
}
