package trace

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/vrx/internal/capture"
)

func TestNewlineWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewNewlineWriter(&buf)

	for i, v := range []int{0, 1, 12, 0} {
		require.NoError(t, w.Write(Sample{Index: i, Occupancy: v}))
	}
	require.NoError(t, w.Close())

	assert.Equal(t, "0\n1\n12\n0\n", buf.String())
}

func TestWriteSamples(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSamples(&buf, []int{3, 2, 1}))
	assert.Equal(t, "3\n2\n1\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteSamples(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestCreateNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.pcap.txt")

	w, err := CreateNewline(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Sample{Occupancy: 7}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7\n", string(data))

	_, err = CreateNewline(filepath.Join(t.TempDir(), "no", "such", "dir.txt"))
	assert.Error(t, err)
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)

	at := time.Unix(1700000000, 4000).UTC()
	require.NoError(t, w.Write(Sample{
		Index:     0,
		Record:    capture.Record{CaptureTime: at, SequenceNumber: 65535, Timestamp: 90000, Marker: true},
		Occupancy: 0,
		Underrun:  -6,
	}))
	require.NoError(t, w.Write(Sample{
		Index:     1,
		Record:    capture.Record{CaptureTime: at.Add(time.Millisecond), SequenceNumber: 0, Timestamp: 93600},
		Occupancy: 4,
	}))
	require.NoError(t, w.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"0", "2023-11-14T22:13:20.000004Z", "65535", "90000", "true", "0", "-6"}, rows[1])
	assert.Equal(t, []string{"1", "2023-11-14T22:13:20.001004Z", "0", "93600", "false", "4", "0"}, rows[2])
}

func TestCSVWriter_EmptyHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(&buf).Close())
	assert.Equal(t, "index,capture_time,sequence,rtp_timestamp,marker,occupancy,underrun\n", buf.String())
}

type failingSink struct {
	writes int
	err    error
}

func (f *failingSink) Write(Sample) error { f.writes++; return f.err }
func (f *failingSink) Close() error       { return f.err }

func TestMultiSink(t *testing.T) {
	var a, b bytes.Buffer
	m := MultiSink{NewNewlineWriter(&a), NewNewlineWriter(&b)}

	require.NoError(t, m.Write(Sample{Occupancy: 5}))
	require.NoError(t, m.Close())

	assert.Equal(t, "5\n", a.String())
	assert.Equal(t, "5\n", b.String())
}

func TestMultiSink_Errors(t *testing.T) {
	boom := errors.New("disk full")
	bad := &failingSink{err: boom}
	good := &failingSink{}
	m := MultiSink{bad, good}

	assert.ErrorIs(t, m.Write(Sample{}), boom)
	assert.Equal(t, 0, good.writes)
	assert.ErrorIs(t, m.Close(), boom)
}
