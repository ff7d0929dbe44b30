// Package audit persists one delivery record per send attempt into
// per-calendar-day JSON stores and computes delivery statistics over them.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logFilePrefix = "email_log_"
	logFileSuffix = ".json"
	dateLayout    = "2006-01-02"
)

// Attempt is one audit record. MessageID is set iff the send succeeded;
// ErrorDetails carries the full transport error for failed sends.
type Attempt struct {
	Timestamp    time.Time `json:"timestamp"`
	Recipient    string    `json:"recipient"`
	Success      bool      `json:"success"`
	MessageID    string    `json:"messageId,omitempty"`
	ErrorDetails string    `json:"errorDetails,omitempty"`
}

// Logger appends attempts to the day store matching each attempt's UTC
// date. All mutations go through a single writer goroutine, so concurrent
// records for the same day cannot lose updates. Record never fails the
// caller: storage problems are logged and swallowed, because auditing must
// never break a user-facing send.
type Logger struct {
	dir      string
	requests chan recordRequest

	closeOnce sync.Once
	closed    chan struct{}
}

type recordRequest struct {
	attempt Attempt
	done    chan struct{}
}

// NewLogger creates the log directory if needed and starts the writer.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	l := &Logger{
		dir:      dir,
		requests: make(chan recordRequest),
		closed:   make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Record persists the attempt and returns once the write has finished, so
// a caller always observes its own record. A zero timestamp is filled with
// the current time; all timestamps are stored in UTC.
func (l *Logger) Record(attempt Attempt) {
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now()
	}
	attempt.Timestamp = attempt.Timestamp.UTC()

	req := recordRequest{attempt: attempt, done: make(chan struct{})}
	select {
	case l.requests <- req:
		<-req.done
	case <-l.closed:
		log.Printf("audit: logger closed, attempt for %s not recorded", attempt.Recipient)
	}
}

// ListAttempts returns every attempt whose UTC date falls within the
// inclusive range, in store order.
func (l *Logger) ListAttempts(from, to time.Time) ([]Attempt, error) {
	var attempts []Attempt

	fromDate := from.UTC().Truncate(24 * time.Hour)
	toDate := to.UTC().Truncate(24 * time.Hour)

	for _, date := range listDates(l.dir) {
		day, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			continue
		}
		if day.Before(fromDate) || day.After(toDate) {
			continue
		}

		dayAttempts, err := readDay(l.dir, date)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, dayAttempts...)
	}

	return attempts, nil
}

// Close stops the writer. Pending Record calls are dropped with a log line.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
}

func (l *Logger) writeLoop() {
	for {
		select {
		case req := <-l.requests:
			if err := l.append(req.attempt); err != nil {
				log.Printf("audit: recording attempt for %s: %v", req.attempt.Recipient, err)
			}
			close(req.done)
		case <-l.closed:
			return
		}
	}
}

// append is a read-modify-write of the attempt's whole day store. Only the
// writer goroutine calls it.
func (l *Logger) append(attempt Attempt) error {
	date := attempt.Timestamp.Format(dateLayout)
	path := filepath.Join(l.dir, logFilePrefix+date+logFileSuffix)

	var attempts []Attempt
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &attempts); err != nil {
			// Leave a corrupt day store untouched rather than clobber it.
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// first attempt of the day
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}

	attempts = append(attempts, attempt)
	out, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// listDates returns the dates that have a day store, oldest first.
func listDates(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("audit: listing %s: %v", dir, err)
		}
		return nil
	}

	var dates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), logFileSuffix))
	}
	sort.Strings(dates)
	return dates
}

func readDay(dir, date string) ([]Attempt, error) {
	path := filepath.Join(dir, logFilePrefix+date+logFileSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var attempts []Attempt
	if err := json.Unmarshal(data, &attempts); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return attempts, nil
}
