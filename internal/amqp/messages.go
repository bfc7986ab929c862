package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job kinds the report worker understands.
const (
	JobEntryReport      = "entry_report"
	JobStatementsReport = "statements_report"
)

// ReportJobMessage asks the worker to build one report. It carries only
// identifiers; the worker loads the data from the database so a stale
// message never ships stale figures.
type ReportJobMessage struct {
	Kind       string    `json:"kind"`
	EntryID    int64     `json:"entry_id,omitempty"`
	TypeFilter string    `json:"type_filter,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEntryReportMessage builds a job for one saved entry's workbook.
func NewEntryReportMessage(entryID int64) *ReportJobMessage {
	return &ReportJobMessage{
		Kind:      JobEntryReport,
		EntryID:   entryID,
		Timestamp: time.Now(),
	}
}

// NewStatementsReportMessage builds a job for the statements workbook.
// typeFilter is an income type name, or empty for all types.
func NewStatementsReportMessage(typeFilter string) *ReportJobMessage {
	return &ReportJobMessage{
		Kind:       JobStatementsReport,
		TypeFilter: typeFilter,
		Timestamp:  time.Now(),
	}
}

// Validate checks the message is one the worker can act on.
func (m *ReportJobMessage) Validate() error {
	switch m.Kind {
	case JobEntryReport:
		if m.EntryID <= 0 {
			return fmt.Errorf("entry report job needs a positive entry id, got %d", m.EntryID)
		}
	case JobStatementsReport:
		// nothing else required
	default:
		return fmt.Errorf("unknown job kind %q", m.Kind)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ReportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportJobMessageFromJSON creates a message from JSON bytes
func ReportJobMessageFromJSON(data []byte) (*ReportJobMessage, error) {
	var msg ReportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
