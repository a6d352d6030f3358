package members

import (
	"maps"
	"slices"
)

// View maps each pool to its members in insertion order. A nil View means no snapshot
// has been loaded yet. Views are never mutated once built; every update produces a new one.
type View map[PoolID][]Member

// Pools returns the pool ids of the view in ascending order
func (v View) Pools() []PoolID {
	return slices.Sorted(maps.Keys(v))
}

// MemberCount returns the number of member records across all pools
func (v View) MemberCount() int {
	n := 0
	for _, seq := range v {
		n += len(seq)
	}
	return n
}

// BuildInitialView groups a storage snapshot by pool. Entries without a value are skipped;
// within a pool members keep the order in which they appear in entries.
func BuildInitialView(entries []Entry) View {
	view := make(View)
	for _, entry := range entries {
		if entry.Value == nil {
			continue
		}
		info := *entry.Value
		view[info.PoolID] = append(view[info.PoolID], Member{AccountID: entry.Key, Info: info})
	}
	return view
}

// MergeResult is a merged view together with the pools whose sequences were rebuilt
type MergeResult struct {
	View    View
	Touched []PoolID
}

// MergeAdditions applies freshly fetched member records to current and returns the new view.
func MergeAdditions(current View, additions []Member) View {
	return Merge(current, additions).View
}

// Merge applies additions to current with last-write-wins semantics per account.
//
// Each addition is removed from every pool it previously appeared in and appended to the
// end of its target pool. Rebuilt pools are fresh slices, and a rebuilt pool that ends up
// empty stays in the view. Pools that are not rebuilt are shared with current.
func Merge(current View, additions []Member) MergeResult {
	next := make(View, len(current)+len(additions))
	maps.Copy(next, current)

	touched := make(map[PoolID]struct{})
	for _, addition := range additions {
		target := addition.Info.PoolID

		for poolID, seq := range next {
			if poolID == target || !contains(seq, addition.AccountID) {
				continue
			}
			next[poolID] = without(seq, addition.AccountID)
			touched[poolID] = struct{}{}
		}

		next[target] = append(without(next[target], addition.AccountID), addition)
		touched[target] = struct{}{}
	}

	return MergeResult{
		View:    next,
		Touched: slices.Sorted(maps.Keys(touched)),
	}
}

func contains(seq []Member, account AccountID) bool {
	return slices.ContainsFunc(seq, func(m Member) bool { return m.AccountID.Equal(account) })
}

// without copies seq minus the records of account, leaving room for one more member.
func without(seq []Member, account AccountID) []Member {
	out := make([]Member, 0, len(seq)+1)
	for _, m := range seq {
		if !m.AccountID.Equal(account) {
			out = append(out, m)
		}
	}
	return out
}
