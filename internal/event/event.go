package event

import (
	"fmt"
	"time"
)

// Type identifies the kind of user activity an event records
type Type string

const (
	TypeRegistration Type = "registration"
	TypePurchase     Type = "purchase"
	TypeBet          Type = "bet"
	TypeWin          Type = "win"
)

// ParseType converts an event type name into a Type
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeRegistration, TypePurchase, TypeBet, TypeWin:
		return t, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// UnmarshalText rejects unknown event type names when decoding
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event is a single synthetic user activity record.
// Only the fields belonging to the event's type are populated; the rest are
// omitted from the JSON encoding.
type Event struct {
	UserID    string    `json:"user_id"`
	EventType Type      `json:"event_type"`
	EventTime time.Time `json:"event_time"`

	// Registration
	Name          string `json:"name,omitempty"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	City          string `json:"city,omitempty"`
	Country       string `json:"country,omitempty"`
	Postcode      int    `json:"postcode,omitempty"`
	AffiliateURL  string `json:"affiliate_url,omitempty"`
	Campaign      string `json:"campaign,omitempty"`
	Label         *int   `json:"label,omitempty"` // 1 = churn, 0 = retained

	// Purchase
	Amount int `json:"amount,omitempty"`

	// Bet
	BetAmount int `json:"bet_amount,omitempty"`

	// Win
	WinAmount int `json:"win_amount,omitempty"`
}

// LabelFor returns the training label for a churn flag
func LabelFor(churn bool) *int {
	v := 0
	if churn {
		v = 1
	}
	return &v
}
