package model

import "time"

// Trade represents a barter negotiation between a collector and the store (or
// another collector). Exactly one participant holds the turn at any time;
// only that participant may counter or accept. Either participant may always
// decline.
type Trade struct {
	ID             string    `json:"id"`
	SenderID       int64     `json:"sender_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	Status         string    `json:"status"`
	CurrentTurn    int64     `json:"current_turn"`
	Revision       int       `json:"revision"`
	Manifest       Manifest  `json:"manifest"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TradeRevision is one prior (or current) manifest attached to a trade,
// kept for audit display. Revisions are only ever appended.
type TradeRevision struct {
	TradeID   string    `json:"-"`
	Revision  int       `json:"revision"`
	ActorID   int64     `json:"actor_id"`
	Manifest  Manifest  `json:"manifest"`
	CreatedAt time.Time `json:"created_at"`
}

// Trade statuses. accepted and cancelled are terminal.
const (
	TradeStatusPending      = "pending"
	TradeStatusCounterOffer = "counter_offer"
	TradeStatusAccepted     = "accepted"
	TradeStatusCancelled    = "cancelled"
)

// TradeTerminal reports whether s is a terminal trade status.
func TradeTerminal(s string) bool {
	return s == TradeStatusAccepted || s == TradeStatusCancelled
}

// OtherParticipant returns the participant that is not actorID.
func (t *Trade) OtherParticipant(actorID int64) int64 {
	if actorID == t.SenderID {
		return t.CounterpartyID
	}
	return t.SenderID
}

// HasParticipant reports whether userID is one of the two trade parties.
func (t *Trade) HasParticipant(userID int64) bool {
	return userID == t.SenderID || userID == t.CounterpartyID
}
