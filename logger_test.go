package nutrimeal

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileResolutionLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFileResolutionLogger(&buf)

	require.NoError(t, logger.LogStage(StageLog{RequestID: "r1", Stage: StageRaw, Timestamp: time.Now(), Input: map[string]any{"code": "123"}}))
	require.NoError(t, logger.LogStage(StageLog{RequestID: "r1", Stage: StageFinal, Timestamp: time.Now(), Upstream: []UpstreamLog{{Source: "openfoodfacts", Items: 1}}}))
	assert.Zero(t, buf.Len(), "nothing is written before Flush")

	require.NoError(t, logger.Flush())

	var out struct {
		Resolution struct {
			Stages []StageLog `json:"stages"`
		} `json:"resolution"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Resolution.Stages, 2)
	assert.Equal(t, StageRaw, out.Resolution.Stages[0].Stage)
	assert.Equal(t, StageFinal, out.Resolution.Stages[1].Stage)
	assert.Equal(t, 1, out.Resolution.Stages[1].Upstream[0].Items)

	buf.Reset()
	require.NoError(t, logger.Flush())
	assert.Contains(t, buf.String(), `"stages": []`, "buffer is cleared after a flush")
}

func TestFileResolutionLogger_NilWriter(t *testing.T) {
	logger := NewFileResolutionLogger(nil)
	require.NoError(t, logger.LogStage(StageLog{Stage: StageRaw}))
	assert.NoError(t, logger.Flush())
}

func TestStdoutResolutionLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := &StdoutResolutionLogger{writer: &buf}

	require.NoError(t, logger.LogStage(StageLog{Stage: StageNormalized, Error: "boom"}))
	require.NoError(t, logger.LogStage(StageLog{Stage: StageAggregated}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first StageLog
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, StageNormalized, first.Stage)
	assert.Equal(t, "boom", first.Error)
}

func TestNoOpResolutionLogger(t *testing.T) {
	assert.NoError(t, NewNoOpResolutionLogger().LogStage(StageLog{Stage: StageFinal}))
}

func TestNewResolutionLogFilePath(t *testing.T) {
	p := NewResolutionLogFilePath("logs", "Req:ABC")
	assert.True(t, strings.HasPrefix(p, "logs/"))
	assert.True(t, strings.HasSuffix(p, ".req_abc.json"))
}

func TestProviderConfig_Hosts(t *testing.T) {
	cfg := ProviderConfig{OpenFoodFactsHosts: " https://world.openfoodfacts.org/ , ,https://mx.openfoodfacts.org"}
	assert.Equal(t, []string{"https://world.openfoodfacts.org", "https://mx.openfoodfacts.org"}, cfg.Hosts())
}

func TestLookup_Per100Factor(t *testing.T) {
	assert.Equal(t, 1.0, Lookup{}.Per100Factor())
	assert.InDelta(t, 0.5, Lookup{BasisGrams: 200}.Per100Factor(), 0.0001)
}
