package members

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names of the nominationPools pallet
const (
	PalletNominationPools = "nominationPools"
	MethodBonded          = "Bonded"
)

// Bonded payload layout: (member, pool_id, bonded, joined)
const (
	bondedMemberIndex = 0
	bondedJoinedIndex = 3
	bondedFieldCount  = 4
)

// ErrMalformedEvent means a chain event did not have the shape this code was written
// against. It signals a runtime upgrade or a broken gateway, never bad luck.
var ErrMalformedEvent = errors.New("malformed chain event")

// ChainEvent is a runtime event with its positional payload
type ChainEvent struct {
	Pallet string
	Method string
	Data   []json.RawMessage
}

// ChangeSet lists the accounts affected by a batch of events.
// Removed is never populated.
type ChangeSet struct {
	Added   []AccountID
	Removed []AccountID
}

// IsEmpty reports whether no account was added or removed
func (c ChangeSet) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// FilterBondedAdditions collects the accounts that newly joined a pool in events.
// Bonded events for existing members topping up (joined=false) and all other events
// are ignored. A Bonded event that cannot be decoded fails the whole batch.
func FilterBondedAdditions(events []ChainEvent) (ChangeSet, error) {
	changes := ChangeSet{
		Added:   []AccountID{},
		Removed: []AccountID{},
	}

	for i, ev := range events {
		if ev.Method != MethodBonded {
			continue
		}

		account, joined, err := decodeBonded(ev.Data)
		if err != nil {
			return ChangeSet{}, fmt.Errorf("%w: event %d: %w", ErrMalformedEvent, i, err)
		}
		if joined {
			changes.Added = append(changes.Added, account)
		}
	}

	return changes, nil
}

func decodeBonded(data []json.RawMessage) (AccountID, bool, error) {
	if len(data) < bondedFieldCount {
		return AccountID{}, false, fmt.Errorf("expected %d fields, got %d", bondedFieldCount, len(data))
	}

	var account AccountID
	if err := decodeField(data[bondedMemberIndex], &account); err != nil {
		return AccountID{}, false, fmt.Errorf("member: %w", err)
	}

	var joined bool
	if err := decodeField(data[bondedJoinedIndex], &joined); err != nil {
		return AccountID{}, false, fmt.Errorf("joined: %w", err)
	}

	return account, joined, nil
}

// decodeField is json.Unmarshal that also rejects missing and null values
func decodeField(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("value is null")
	}
	return json.Unmarshal(raw, v)
}
