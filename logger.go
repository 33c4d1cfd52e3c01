package nutrimeal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stage is a step of the per-request resolution state machine.
type Stage string

const (
	StageRaw        Stage = "RAW"
	StageConcepts   Stage = "CONCEPTS_OR_INGREDIENTS"
	StageNormalized Stage = "NORMALIZED"
	StageAggregated Stage = "AGGREGATED"
	StageReconciled Stage = "RECONCILED"
	StageFinal      Stage = "FINAL"
)

// ResolutionLogger is the interface for resolution trace logging.
type ResolutionLogger interface {
	LogStage(entry StageLog) error
}

// NewResolutionLogFilePath returns a file path under dir named after the request so traces of one request sit together.
func NewResolutionLogFilePath(dir, requestID string) string {
	return filepath.Join(dir, fmt.Sprintf(
		"%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(requestID), ":", "_"),
	))
}

// StageLog represents a single stage transition of one request
type StageLog struct {
	RequestID string        `json:"request_id,omitempty"`
	Stage     Stage         `json:"stage"`
	Timestamp time.Time     `json:"timestamp"`
	Input     any           `json:"input,omitempty"`
	Output    any           `json:"output,omitempty"`
	Upstream  []UpstreamLog `json:"upstream,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// UpstreamLog represents one upstream call made while in a stage
type UpstreamLog struct {
	Source string `json:"source"`
	Query  string `json:"query,omitempty"`
	// Items is how many usable results the call returned.
	Items int    `json:"items"`
	Error string `json:"error,omitempty"`
}

// FileResolutionLogger logs to a file, accumulating stages and flushing at the end
type FileResolutionLogger struct {
	stages []StageLog
	writer io.Writer
}

// NewFileResolutionLogger creates a new file-based resolution logger
func NewFileResolutionLogger(writer io.Writer) *FileResolutionLogger {
	return &FileResolutionLogger{
		stages: make([]StageLog, 0),
		writer: writer,
	}
}

// LogStage logs a stage to the buffer (does not flush immediately)
func (frl *FileResolutionLogger) LogStage(entry StageLog) error {
	frl.stages = append(frl.stages, entry)
	return nil
}

// Flush flushes all accumulated stages to the writer
func (frl *FileResolutionLogger) Flush() error {
	if frl.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"resolution": map[string]any{
			"timestamp": time.Now(),
			"stages":    frl.stages,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resolution log: %w", err)
	}

	if _, err := frl.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write resolution log: %w", err)
	}

	frl.stages = frl.stages[:0]
	return nil
}

// NoOpResolutionLogger discards all log entries
type NoOpResolutionLogger struct{}

func NewNoOpResolutionLogger() *NoOpResolutionLogger {
	return &NoOpResolutionLogger{}
}

func (nop *NoOpResolutionLogger) LogStage(entry StageLog) error {
	return nil
}

// StdoutResolutionLogger logs each stage as a JSON line (for Lambda/CloudWatch)
type StdoutResolutionLogger struct {
	writer io.Writer
}

// NewStdoutResolutionLogger creates a logger writing to os.Stdout
func NewStdoutResolutionLogger() *StdoutResolutionLogger {
	return &StdoutResolutionLogger{writer: os.Stdout}
}

// LogStage writes the stage as a single JSON line
func (l *StdoutResolutionLogger) LogStage(entry StageLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	fmt.Fprintln(l.writer, string(data))
	return nil
}
