package audit

import (
	"bytes"
	"encoding/csv"
	"time"
)

// Exporter encodes timeline rows as CSV.
type Exporter struct{}

// NewExporter builds an Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV encodes rows with a header line.
func (e *Exporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"at", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{row.At.UTC().Format(time.RFC3339), row.Actor, row.Action, row.Entity, row.EntityID, row.Meta}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
