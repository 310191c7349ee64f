// Package buckets converts a domain snapshot to and from the per-collection
// JSON payloads stored by the snapshotting SQL drivers.
package buckets

import (
	"fmt"

	json "github.com/goccy/go-json"

	"whalewatcher/pkg/domain"
)

// Bucket names in persistence order.
const (
	Cases             = "cases"
	Gaps              = "gaps"
	EvidenceOrders    = "evidence_orders"
	Documents         = "documents"
	ApplicationFields = "application_fields"
	Notifications     = "notifications"
	AuditEvents       = "audit_events"
)

// Names lists every bucket written by Encode.
var Names = []string{Cases, Gaps, EvidenceOrders, Documents, ApplicationFields, Notifications, AuditEvents}

func targets(s *domain.Snapshot) map[string]any {
	return map[string]any{
		Cases:             &s.Cases,
		Gaps:              &s.Gaps,
		EvidenceOrders:    &s.EvidenceOrders,
		Documents:         &s.Documents,
		ApplicationFields: &s.ApplicationFields,
		Notifications:     &s.Notifications,
		AuditEvents:       &s.AuditEvents,
	}
}

// Payload is one encoded bucket.
type Payload struct {
	Bucket string
	Data   []byte
}

// Encode marshals each collection of the snapshot into its bucket payload.
func Encode(snapshot domain.Snapshot) ([]Payload, error) {
	tgt := targets(&snapshot)
	out := make([]Payload, 0, len(Names))
	for _, name := range Names {
		data, err := json.Marshal(tgt[name])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out = append(out, Payload{Bucket: name, Data: data})
	}
	return out, nil
}

// Decoder accumulates bucket payloads into a snapshot.
type Decoder struct {
	snapshot domain.Snapshot
	targets  map[string]any
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.targets = targets(&d.snapshot)
	return d
}

// Add decodes one bucket payload. Unknown buckets and empty payloads are ignored.
func (d *Decoder) Add(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := d.targets[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// Snapshot returns the decoded state.
func (d *Decoder) Snapshot() domain.Snapshot {
	return d.snapshot
}
