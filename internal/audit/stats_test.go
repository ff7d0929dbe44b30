package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsFixture(t *testing.T) {
	l, dir := newTestLogger(t)

	day := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		l.Record(Attempt{Timestamp: day, Recipient: "x@a.com", Success: true, MessageID: "<ok@relay>"})
	}
	l.Record(Attempt{Timestamp: day, Recipient: "x@a.com", Success: false, ErrorDetails: "550 no such user"})
	for i := 0; i < 2; i++ {
		l.Record(Attempt{Timestamp: day, Recipient: "y@b.com", Success: true, MessageID: "<ok@relay>"})
	}

	report := NewAggregator(dir).Stats()

	assert.Equal(t, 6, report.TotalAttempts)
	assert.Equal(t, 5, report.SuccessfulDeliveries)
	assert.Equal(t, 1, report.FailedDeliveries)
	assert.Equal(t, "83.33%", report.SuccessRate)

	require.Contains(t, report.DomainStats, "a.com")
	assert.Equal(t, 4, report.DomainStats["a.com"].Attempts)
	assert.Equal(t, "75.00%", report.DomainStats["a.com"].SuccessRate)

	require.Contains(t, report.DomainStats, "b.com")
	assert.Equal(t, "100.00%", report.DomainStats["b.com"].SuccessRate)
}

func TestStatsEmptyHistory(t *testing.T) {
	report := NewAggregator(t.TempDir()).Stats()

	assert.Equal(t, 0, report.TotalAttempts)
	assert.Equal(t, "0%", report.SuccessRate)
	assert.Empty(t, report.DomainStats)
}

func TestStatsSpansMultipleDays(t *testing.T) {
	l, dir := newTestLogger(t)

	l.Record(Attempt{Timestamp: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), Recipient: "a@a.com", Success: true, MessageID: "<1@relay>"})
	l.Record(Attempt{Timestamp: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC), Recipient: "b@a.com", Success: true, MessageID: "<2@relay>"})

	report := NewAggregator(dir).Stats()
	assert.Equal(t, 2, report.TotalAttempts)
	assert.Equal(t, 2, report.DomainStats["a.com"].Attempts)
}

func TestStatsSkipsMalformedStores(t *testing.T) {
	l, dir := newTestLogger(t)

	l.Record(Attempt{Timestamp: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), Recipient: "a@a.com", Success: true, MessageID: "<1@relay>"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "email_log_2025-03-15.json"), []byte("not json"), 0644))

	report := NewAggregator(dir).Stats()
	assert.Equal(t, 1, report.TotalAttempts)
	assert.Equal(t, "100.00%", report.SuccessRate)
}

func TestStatsIgnoresRecipientsWithoutDomain(t *testing.T) {
	l, dir := newTestLogger(t)

	day := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	l.Record(Attempt{Timestamp: day, Recipient: "not-an-address", Success: false, ErrorDetails: "rejected"})
	l.Record(Attempt{Timestamp: day, Recipient: "a@a.com", Success: true, MessageID: "<1@relay>"})

	report := NewAggregator(dir).Stats()
	// Counted in the totals, absent from the domain buckets.
	assert.Equal(t, 2, report.TotalAttempts)
	assert.Len(t, report.DomainStats, 1)
}

func TestStatsIdempotent(t *testing.T) {
	l, dir := newTestLogger(t)

	day := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	l.Record(Attempt{Timestamp: day, Recipient: "a@a.com", Success: true, MessageID: "<1@relay>"})

	agg := NewAggregator(dir)
	first := agg.Stats()
	second := agg.Stats()
	assert.Equal(t, first, second)
}
