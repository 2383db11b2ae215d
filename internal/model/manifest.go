package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Manifest is one revision of a trade proposal: the item IDs each side puts
// on the table plus a cash adjustment (positive = proposer receives cash).
// It is a pure value; a counter-offer always produces a new manifest.
type Manifest struct {
	OfferedItems   []string        `json:"offered_items"`
	RequestedItems []string        `json:"requested_items"`
	CashAdjustment decimal.Decimal `json:"cash_adjustment"`
}

// Manifest sides.
const (
	SideOffered   = "offered"
	SideRequested = "requested"
)

// AddItem puts an item ID on the given side. Adding an ID already present on
// the same side is a no-op; adding one present on the other side is an error,
// since an item cannot be simultaneously given and received.
func (m *Manifest) AddItem(itemID, side string) error {
	switch side {
	case SideOffered, SideRequested:
	default:
		return fmt.Errorf("unknown manifest side %q", side)
	}

	if containsID(m.sideItems(otherSide(side)), itemID) {
		return fmt.Errorf("item %s already on the %s side", itemID, otherSide(side))
	}
	if containsID(m.sideItems(side), itemID) {
		return nil
	}

	if side == SideOffered {
		m.OfferedItems = append(m.OfferedItems, itemID)
	} else {
		m.RequestedItems = append(m.RequestedItems, itemID)
	}
	return nil
}

// RemoveItem removes an item ID from the given side. Absent IDs are a no-op.
func (m *Manifest) RemoveItem(itemID, side string) {
	if side == SideOffered {
		m.OfferedItems = removeID(m.OfferedItems, itemID)
	} else if side == SideRequested {
		m.RequestedItems = removeID(m.RequestedItems, itemID)
	}
}

// SetCashAdjustment replaces the cash adjustment. Any signed amount is
// allowed at this layer.
func (m *Manifest) SetCashAdjustment(amount decimal.Decimal) {
	m.CashAdjustment = amount
}

// ItemIDs returns every item ID referenced by the manifest, offered side
// first. The result has no duplicates as long as the manifest is valid.
func (m *Manifest) ItemIDs() []string {
	ids := make([]string, 0, len(m.OfferedItems)+len(m.RequestedItems))
	ids = append(ids, m.OfferedItems...)
	ids = append(ids, m.RequestedItems...)
	return ids
}

// Validate checks what must hold before a manifest may be attached to a
// trade: at least one item, no duplicate IDs, and disjoint sides.
func (m *Manifest) Validate() error {
	if len(m.OfferedItems) == 0 && len(m.RequestedItems) == 0 {
		return fmt.Errorf("manifest has no items")
	}
	seen := make(map[string]bool, len(m.OfferedItems)+len(m.RequestedItems))
	for _, id := range m.OfferedItems {
		if seen[id] {
			return fmt.Errorf("item %s listed twice on the offered side", id)
		}
		seen[id] = true
	}
	for _, id := range m.RequestedItems {
		if seen[id] {
			if containsID(m.OfferedItems, id) {
				return fmt.Errorf("item %s appears on both sides", id)
			}
			return fmt.Errorf("item %s listed twice on the requested side", id)
		}
		seen[id] = true
	}
	return nil
}

func (m *Manifest) sideItems(side string) []string {
	if side == SideOffered {
		return m.OfferedItems
	}
	return m.RequestedItems
}

func otherSide(side string) string {
	if side == SideOffered {
		return SideRequested
	}
	return SideOffered
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
