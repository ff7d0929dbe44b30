package audit

import (
	"fmt"
	"log"
	"strings"
)

// Report holds delivery statistics over the full audit history.
type Report struct {
	TotalAttempts        int                     `json:"totalAttempts"`
	SuccessfulDeliveries int                     `json:"successfulDeliveries"`
	FailedDeliveries     int                     `json:"failedDeliveries"`
	SuccessRate          string                  `json:"successRate"`
	DomainStats          map[string]*DomainStats `json:"domainStats"`
}

// DomainStats is the per-recipient-domain breakdown.
type DomainStats struct {
	Attempts    int    `json:"attempts"`
	Success     int    `json:"success"`
	Failure     int    `json:"failure"`
	SuccessRate string `json:"successRate"`
}

// Aggregator computes statistics from the persisted day stores. It runs
// out of band against the same directory the Logger writes; unreadable or
// unparseable stores are skipped with a warning, never fatal.
type Aggregator struct {
	dir string
}

// NewAggregator creates an aggregator over the given log directory.
func NewAggregator(dir string) *Aggregator {
	return &Aggregator{dir: dir}
}

// Stats folds every recorded attempt - the full history, no date filter -
// into global totals and per-domain buckets keyed by the part of the
// recipient after "@".
func (a *Aggregator) Stats() *Report {
	report := &Report{
		DomainStats: make(map[string]*DomainStats),
	}

	for _, date := range listDates(a.dir) {
		attempts, err := readDay(a.dir, date)
		if err != nil {
			log.Printf("audit: skipping day store %s: %v", date, err)
			continue
		}

		for _, attempt := range attempts {
			report.TotalAttempts++
			if attempt.Success {
				report.SuccessfulDeliveries++
			} else {
				report.FailedDeliveries++
			}

			_, domain, found := strings.Cut(attempt.Recipient, "@")
			if !found || domain == "" {
				continue
			}
			ds := report.DomainStats[domain]
			if ds == nil {
				ds = &DomainStats{}
				report.DomainStats[domain] = ds
			}
			ds.Attempts++
			if attempt.Success {
				ds.Success++
			} else {
				ds.Failure++
			}
		}
	}

	report.SuccessRate = formatRate(report.SuccessfulDeliveries, report.TotalAttempts)
	for _, ds := range report.DomainStats {
		ds.SuccessRate = formatRate(ds.Success, ds.Attempts)
	}
	return report
}

// formatRate renders a percentage with two decimal places, "0%" when there
// were no attempts.
func formatRate(successes, attempts int) string {
	if attempts == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(successes)/float64(attempts)*100)
}
