// Package members builds the nomination pool membership view: a per-pool, ordered list of
// delegators assembled from a storage snapshot and kept current from Bonded events.
package members

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for failure cases
var (
	ErrInvalidPoolID  = errors.New("invalid pool id")
	ErrLookupMismatch = errors.New("lookup results do not match the requested ids")
)

// PoolID identifies a nomination pool
type PoolID uint32

// ParsePoolID parses the decimal form used by the chain gateway and the web API.
func ParsePoolID(s string) (PoolID, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPoolID, s)
	}
	return PoolID(id), nil
}

func (p PoolID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// UnmarshalJSON accepts both the quoted form the gateway renders integers in and a bare number.
func (p *PoolID) UnmarshalJSON(data []byte) error {
	id, err := ParsePoolID(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// Info is the delegator record stored on chain for a pool member.
// Everything except PoolID is carried through untouched.
type Info struct {
	PoolID                    PoolID            `json:"poolId"`
	Points                    string            `json:"points"`
	LastRecordedRewardCounter string            `json:"lastRecordedRewardCounter"`
	UnbondingEras             map[string]string `json:"unbondingEras,omitempty"`
}

// Member pairs an account with its delegator record
type Member struct {
	AccountID AccountID `json:"accountId"`
	Info      Info      `json:"info"`
}

// Entry is one key/value pair of the poolMembers storage map. A nil Value means the
// key had no record.
type Entry struct {
	Key   AccountID
	Value *Info
}

// CollectLookups pairs the ids of a batched lookup with its results, dropping ids whose
// record is absent. infos must hold exactly one result per id, in the same order.
func CollectLookups(ids []AccountID, infos []*Info) ([]Member, error) {
	if len(infos) != len(ids) {
		return nil, fmt.Errorf("%w: %d ids, %d results", ErrLookupMismatch, len(ids), len(infos))
	}

	found := make([]Member, 0, len(ids))
	for i, id := range ids {
		if infos[i] == nil {
			continue
		}
		found = append(found, Member{AccountID: id, Info: *infos[i]})
	}
	return found, nil
}
