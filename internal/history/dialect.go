package history

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the differences between the supported databases
type dialect struct {
	name       string
	driver     string
	numbered   bool
	migrations []string
}

const runsColumns = `
	id VARCHAR(64) PRIMARY KEY,
	run_date VARCHAR(10) NOT NULL,
	trigger_source VARCHAR(16) NOT NULL,
	status VARCHAR(16) NOT NULL,
	started_at VARCHAR(40) NOT NULL,
	finished_at VARCHAR(40) NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	record_count INTEGER NOT NULL DEFAULT 0,
	avg_length_of_stay DOUBLE PRECISION NOT NULL DEFAULT 0,
	readmission_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	rows_in INTEGER NOT NULL DEFAULT 0,
	rows_dropped INTEGER NOT NULL DEFAULT 0,
	published_keys TEXT NOT NULL,
	error_message TEXT NOT NULL,
	steps_json TEXT NOT NULL`

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", "sqlite":
		return dialect{
			name:   "sqlite",
			driver: "sqlite",
			migrations: []string{
				`CREATE TABLE IF NOT EXISTS etl_runs (` + runsColumns + `)`,
				`CREATE INDEX IF NOT EXISTS idx_etl_runs_started ON etl_runs(started_at)`,
				`CREATE INDEX IF NOT EXISTS idx_etl_runs_date ON etl_runs(run_date)`,
			},
		}, nil
	case "postgres":
		return dialect{
			name:     "postgres",
			driver:   "postgres",
			numbered: true,
			migrations: []string{
				`CREATE TABLE IF NOT EXISTS etl_runs (` + runsColumns + `)`,
				`CREATE INDEX IF NOT EXISTS idx_etl_runs_started ON etl_runs(started_at)`,
				`CREATE INDEX IF NOT EXISTS idx_etl_runs_date ON etl_runs(run_date)`,
			},
		}, nil
	case "mysql":
		// MySQL has no CREATE INDEX IF NOT EXISTS; declare indexes inline
		return dialect{
			name:   "mysql",
			driver: "mysql",
			migrations: []string{
				`CREATE TABLE IF NOT EXISTS etl_runs (` + runsColumns + `,
	INDEX idx_etl_runs_started (started_at),
	INDEX idx_etl_runs_date (run_date))`,
			},
		}, nil
	default:
		return dialect{}, fmt.Errorf("unknown driver %q", driver)
	}
}

// rebind rewrites ? placeholders as $1, $2, ... for drivers that need it
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
