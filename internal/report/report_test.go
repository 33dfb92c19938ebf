package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	rep := New("run-1")
	rep.CaptureFile = "cam1.pcap"
	rep.Filter = "239.1.1.1:20000"
	rep.PacketsPerFrame = 4320
	rep.FrameRate = "60000/1001"
	rep.FrameFrequency = "59.94"
	rep.Packets = 1296000
	rep.MaxOccupancy = 212
	rep.FramesOpened = 300
	rep.FramesDrained = 299
	rep.StartedAt = time.Unix(1700000000, 0).UTC()
	rep.FinishedAt = rep.StartedAt.Add(1500 * time.Millisecond)
	rep.Duration = 1500 * time.Millisecond
	return rep
}

func TestNew(t *testing.T) {
	a := New("run-1")
	b := New("run-1")

	assert.NotEqual(t, a.ID, b.ID)
	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, -1, a.FirstUnderrun)
	assert.NotEmpty(t, a.Version)
	assert.True(t, a.Compliant())
}

func TestAddUnderrun(t *testing.T) {
	rep := New("run")

	rep.AddUnderrun(17, -2)
	rep.AddUnderrun(40, -9)
	rep.AddUnderrun(41, -1)

	assert.Equal(t, 3, rep.Underruns)
	assert.Equal(t, -9, rep.WorstUnderrun)
	assert.Equal(t, 17, rep.FirstUnderrun)
	assert.False(t, rep.Compliant())
}

func TestWriteJSON(t *testing.T) {
	rep := sampleReport()
	rep.AddUnderrun(5, -6)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"id\""))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "60000/1001", decoded["frame_rate"])
	assert.Equal(t, "59.94", decoded["frame_frequency"])
	assert.Equal(t, float64(212), decoded["max_occupancy"])
	assert.Equal(t, float64(1), decoded["underruns"])
	assert.Equal(t, float64(-6), decoded["worst_underrun"])
	assert.Equal(t, float64(5), decoded["first_underrun_index"])
	assert.NotContains(t, decoded, "trace_path")
}
