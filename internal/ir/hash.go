package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEvent is the domain prefix for event slot identity.
// The version suffix enables future algorithm migration.
const DomainEvent = "sagalog/event/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed id of the slot an event occupies
// in a step instance's history.
//
// A step instance has one precall slot and one call slot, so the id covers
// the instance, event type and step identity but not the Call outcome.
// Re-publishing the same slot yields the same id, which stores use to make
// appends idempotent.
func EventID(instanceID string, e Event) (string, error) {
	key := e.Key()
	obj := map[string]any{
		"instance_id": instanceID,
		"type":        string(e.Type()),
		"step_id":     key.StepID,
		"name":        key.Name,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
