package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

type dbGauge struct {
	name  string
	help  string
	query string
}

// Gauges backed by a single-value query, evaluated on every scrape.
var dbGauges = []dbGauge{
	{
		name:  "event_outbox_pending",
		help:  "Pending outbox records",
		query: `SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'`,
	},
	{
		name:  "event_dlq_count",
		help:  "Dead letter queue records",
		query: `SELECT COUNT(*) FROM dead_letter_events`,
	},
	{
		name:  "entries_overdue",
		help:  "Ledger entries stored as overdue",
		query: `SELECT COUNT(*) FROM ledger_entries WHERE status = 'overdue'`,
	},
	{
		name: "outstanding_balance",
		help: "Sum of balances over entries that are neither paid nor waived",
		query: `
SELECT COALESCE(SUM(e.final_amount - COALESCE(p.paid, 0)), 0)::float8
FROM ledger_entries e
LEFT JOIN (
	SELECT entry_id, SUM(amount) AS paid FROM ledger_payments GROUP BY entry_id
) p ON p.entry_id = e.id
WHERE e.status NOT IN ('paid', 'waived')`,
	},
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	for _, gauge := range dbGauges {
		query := gauge.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + gauge.name, Help: gauge.help},
			func() float64 { return queryValue(db, logger, query) },
		))
	}
}

func queryValue(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var value float64
	if err := db.QueryRow(query).Scan(&value); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}
