package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %q, want info", cfg.Level)
	}
	if !cfg.Pretty {
		t.Error("Pretty should default to true")
	}
	if cfg.Output != os.Stderr {
		t.Error("Output should default to stderr so stdout only carries progress lines")
	}
}

func TestSetup_NilOutputWritesToStderr(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	stderr := os.Stderr
	os.Stderr = w

	logger := Setup(Config{Level: LevelInfo})
	logger.Info().Msg("to stderr")

	os.Stderr = stderr
	w.Close()
	out, _ := io.ReadAll(r)

	if !strings.Contains(string(out), "to stderr") {
		t.Errorf("stderr = %q, want the message", out)
	}
}

func TestSetup_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("sink")
	logger.Warn().Int("page", 4).Str("error_class", "http_status").Msg("Page fetch failed, skipping")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not one JSON line: %v (%q)", err, buf.String())
	}

	want := map[string]any{
		"level":       "warn",
		"component":   "sink",
		"page":        float64(4),
		"error_class": "http_status",
		"message":     "Page fetch failed, skipping",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %v", k, line[k], v)
		}
	}
	if _, ok := line["time"]; !ok {
		t.Error("JSON line should carry a timestamp")
	}
}

func TestSetup_PrettyUsesTimeOnly(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger := NewLogger("runner")
	logger.Info().Int("page", 3).Msg("Run planned")

	output := buf.String()
	if strings.HasPrefix(output, "{") {
		t.Fatalf("expected console output, got JSON %q", output)
	}
	if !strings.Contains(output, "Run planned") || !strings.Contains(output, "runner") {
		t.Errorf("unexpected console output %q", output)
	}
	if !regexp.MustCompile(`\d{2}:\d{2}:\d{2}`).MatchString(output) {
		t.Errorf("console output should carry a clock time, got %q", output)
	}
	if strings.Contains(output, time.Now().Format("2006-01-02")) {
		t.Errorf("console output should not carry the date, got %q", output)
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{level: LevelDebug, want: []string{"debug", "info", "warn", "error"}},
		{level: LevelInfo, want: []string{"info", "warn", "error"}},
		{level: LevelWarn, want: []string{"warn", "error"}},
		{level: "warning", want: []string{"warn", "error"}},
		{level: "ERROR", want: []string{"error"}},
		{level: "trace", want: []string{"info", "warn", "error"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Output: buf})

			logger := NewLogger("scheduler")
			logger.Debug().Msg("debug")
			logger.Info().Msg("info")
			logger.Warn().Msg("warn")
			logger.Error().Msg("error")

			var got []string
			dec := json.NewDecoder(buf)
			for dec.More() {
				var line map[string]any
				if err := dec.Decode(&line); err != nil {
					t.Fatal(err)
				}
				got = append(got, line["message"].(string))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("logged %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger_Components(t *testing.T) {
	for _, component := range []string{"feed-client", "scheduler", "sink", "runner", "runstate", "cache"} {
		buf := &bytes.Buffer{}
		Setup(Config{Level: LevelInfo, Output: buf})

		logger := NewLogger(component)
		logger.Info().Msg("hello")

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatal(err)
		}
		if line["component"] != component {
			t.Errorf("component = %v, want %s", line["component"], component)
		}
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if err := ValidLevel(level); err != nil {
			t.Errorf("ValidLevel(%q) = %v, want nil", level, err)
		}
	}
	if err := ValidLevel("trace"); err == nil {
		t.Error("ValidLevel(trace) should fail")
	}
}
