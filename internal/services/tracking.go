package services

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// trackingNumberAttempts bounds retries when a generated number collides
// with an existing one.
const trackingNumberAttempts = 5

// newTrackingNumber produces a carrier reference of the form
// TANA-YYYYMMDD-NNNN. The date encodes when fulfillment assigned the
// number, not the order date.
func newTrackingNumber(now time.Time) string {
	return fmt.Sprintf("TANA-%s-%04d", now.UTC().Format("20060102"), rand.IntN(10000))
}
