package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job types carried on the jobs queue.
const (
	JobDebriefRequested = "debrief.requested"
	JobSharkAudit       = "shark.audit"
	JobSheetsExport     = "sheets.export"
)

// Job is a unit of background work for one user. Payload is specific to the
// job type and decoded by its handler.
type Job struct {
	Type      string          `json:"type"`
	UserID    int64           `json:"user_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DebriefPayload is the payload of a debrief.requested job.
type DebriefPayload struct {
	ContractID int64 `json:"contract_id"`
}

// ExportPayload is the payload of a sheets.export job.
type ExportPayload struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewJob builds a job with payload marshalled to JSON. A nil payload is
// omitted.
func NewJob(jobType string, userID int64, payload any) (Job, error) {
	j := Job{Type: jobType, UserID: userID, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("marshal %s payload: %w", jobType, err)
		}
		j.Payload = raw
	}
	return j, nil
}

// ToJSON converts the job to JSON bytes
func (j Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("%s job has no payload", j.Type)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// JobFromJSON parses a job and rejects unknown types and missing users.
func JobFromJSON(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, err
	}
	switch j.Type {
	case JobDebriefRequested, JobSharkAudit, JobSheetsExport:
	default:
		return Job{}, fmt.Errorf("unknown job type %q", j.Type)
	}
	if j.UserID <= 0 {
		return Job{}, fmt.Errorf("%s job without user", j.Type)
	}
	return j, nil
}
