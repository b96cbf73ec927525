package models

import "encoding/json"

// DailyCacheEnvelope wraps a cached payload with the calendar day it was
// computed for. A record is only valid for reuse while its Date equals
// the current day string.
type DailyCacheEnvelope struct {
	Date string          `json:"date"`
	Data json.RawMessage `json:"data"`
}
