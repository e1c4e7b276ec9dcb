package entity

import "time"

type Customer struct {
	ID          string `json:"customerId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Fingerprint string `json:"device_fingerprint,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// CustomerRecord is the persisted form of a registered customer. StoredAt is
// the write timestamp used for the 30-day expiry check on load.
type CustomerRecord struct {
	Customer Customer  `json:"customerInfo"`
	StoredAt time.Time `json:"timestamp"`
}

// CustomerTTL is how long a stored customer identity stays valid without a
// fresh registration or update.
const CustomerTTL = 30 * 24 * time.Hour

func (r CustomerRecord) Expired(now time.Time) bool {
	return now.Sub(r.StoredAt) > CustomerTTL
}
