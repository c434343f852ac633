package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subjectboard/server/internal/metrics"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *memorySink) Write(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestLogger_RecordWritesLogAndSink(t *testing.T) {
	var buf bytes.Buffer
	sink := &memorySink{}
	logger := NewLogger(zerolog.New(&buf), sink, time.Second)

	entry := Entry{
		Operation:   OperationUpdate,
		ContentType: "text",
		ContentID:   "01HYX3KQW7ERTV9XNBM2P8QJZF",
		ParentGroup: "01HYX3KQW7ERTV9XNBM2P8QJZG",
		OldValues:   []string{"Intro", "Hello"},
		NewValues:   []string{"Intro", ""},
		Fingerprint: "browser-1",
	}
	logger.Record(context.Background(), entry)
	logger.Wait()

	require.Len(t, sink.entries, 1)
	stored := sink.entries[0]
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, entry.OldValues, stored.OldValues)
	assert.Equal(t, entry.NewValues, stored.NewValues)

	line := strings.TrimSpace(buf.String())
	var wrapper map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(line), &wrapper))

	var logged Entry
	require.NoError(t, json.Unmarshal(wrapper["audit"], &logged))
	assert.Equal(t, OperationUpdate, logged.Operation)
	assert.Equal(t, "browser-1", logged.Fingerprint)
}

func TestLogger_RecordNormalizesNilTuples(t *testing.T) {
	sink := &memorySink{}
	logger := NewLogger(zerolog.Nop(), sink, time.Second)

	logger.Record(context.Background(), Entry{Operation: OperationCreate, ContentType: "link"})
	logger.Wait()

	require.Len(t, sink.entries, 1)
	assert.NotNil(t, sink.entries[0].OldValues)
	assert.NotNil(t, sink.entries[0].NewValues)
}

func TestLogger_SinkFailureIsCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.AuditWriteFailures)

	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf), &memorySink{err: errors.New("db down")}, time.Second)
	logger.Record(context.Background(), Entry{Operation: OperationDelete, ContentType: "link"})
	logger.Wait()

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditWriteFailures))
	assert.Contains(t, buf.String(), "failed to persist audit entry")
}

func TestLogger_SurvivesCanceledRequestContext(t *testing.T) {
	sink := &memorySink{}
	logger := NewLogger(zerolog.Nop(), sink, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.Record(ctx, Entry{Operation: OperationCreate, ContentType: "text"})
	logger.Wait()

	assert.Len(t, sink.entries, 1)
}

func TestLogger_NilSinkOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf), nil, 0)
	logger.Record(context.Background(), Entry{Operation: OperationCreate, ContentType: "deadline"})
	logger.Wait()

	assert.Contains(t, buf.String(), `"operation":"create"`)
}
