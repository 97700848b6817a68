// Package partition maps instants to Hive-style hour partitions and tracks
// the per-partition export file sequence.
package partition

import (
	"fmt"
	"path"
	"time"
)

// Key returns the partition key for t: "YYYY-MM-DD-HH" in UTC.
func Key(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}

// Path returns the Hive-style partition path for t:
// "year=YYYY/month=MM/day=DD/hour=HH", zero-padded, UTC.
func Path(t time.Time) string {
	return t.UTC().Format("year=2006/month=01/day=02/hour=15")
}

// Filename joins the output directory, partition path, and zero-padded
// sequence into the export filename.
func Filename(outputDir string, t time.Time, sequence int) string {
	return path.Join(outputDir, Path(t), fmt.Sprintf("events_%03d.jsonl", sequence))
}
