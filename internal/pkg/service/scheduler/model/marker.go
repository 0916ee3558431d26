package model

import (
	"strings"
	"time"

	"github.com/gridrun/gridrun/internal/pkg/encoding/json"
	"github.com/gridrun/gridrun/internal/pkg/service/common/utctime"
)

// markerPrefix distinguishes a claim marker from a final result,
// results never start with it.
const markerPrefix = "#claim#"

// ClaimMarker is an ephemeral value written to an answer cell before execution.
// A marker older than the claim TTL is abandoned and reclaimable.
type ClaimMarker struct {
	Claimant  string          `json:"claimant" validate:"required"`
	Timestamp utctime.UTCTime `json:"timestamp" validate:"required"`
}

func NewClaimMarker(claimant string, now time.Time) ClaimMarker {
	return ClaimMarker{Claimant: claimant, Timestamp: utctime.From(now)}
}

// Encode serializes the marker to the cell value.
func (m ClaimMarker) Encode() string {
	return markerPrefix + json.MustEncodeString(m, false)
}

// IsStale returns true when the marker is older than the TTL,
// such a marker is considered abandoned.
func (m ClaimMarker) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(m.Timestamp.Time()) > ttl
}

// ParseClaimMarker decodes a cell value, ok is false for any non-marker value.
func ParseClaimMarker(value string) (ClaimMarker, bool) {
	if !strings.HasPrefix(value, markerPrefix) {
		return ClaimMarker{}, false
	}
	m := ClaimMarker{}
	if err := json.DecodeString(strings.TrimPrefix(value, markerPrefix), &m); err != nil {
		// A corrupted marker behaves as a foreign claim, it is reclaimable after the TTL window
		// thanks to the zero timestamp.
		return ClaimMarker{Claimant: "unknown"}, true
	}
	return m, true
}

// IsClaimValue returns true if the cell value is a claim marker, not a result.
func IsClaimValue(value string) bool {
	return strings.HasPrefix(value, markerPrefix)
}
