package pgxstore

import (
	"fmt"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/web/pools"
)

// SQL queries
const (
	baseMembersQuery = "SELECT pool_id, position, account_id, points, last_recorded_reward_counter, unbonding_eras FROM pool_members"
)

// MembersQueryBuilder builds pool member queries
type MembersQueryBuilder struct {
	sql  string
	args []any
}

// NewMembersQuery creates a new member query builder
func NewMembersQuery() *MembersQueryBuilder {
	return &MembersQueryBuilder{
		sql: baseMembersQuery,
	}
}

// ForCriteria applies the member criteria to the query in one fluent call
func (q *MembersQueryBuilder) ForCriteria(criteria pools.MembersCriteria) *MembersQueryBuilder {
	return q.
		filterByPool(criteria.PoolID).
		orderByPosition().
		paginateWithDetection(criteria)
}

// ForAccount selects the record of one account by public key
func (q *MembersQueryBuilder) ForAccount(key []byte) *MembersQueryBuilder {
	q.addWhereCondition("account_key = $%d", key)
	q.sql += " LIMIT 1"
	return q
}

func (q *MembersQueryBuilder) filterByPool(id members.PoolID) *MembersQueryBuilder {
	q.addWhereCondition("pool_id = $%d", int64(id))
	return q
}

// orderByPosition keeps the view order within the pool
func (q *MembersQueryBuilder) orderByPosition() *MembersQueryBuilder {
	q.sql += " ORDER BY position"
	return q
}

// paginateWithDetection adds pagination with "has more" detection using LIMIT n+1
func (q *MembersQueryBuilder) paginateWithDetection(criteria pools.MembersCriteria) *MembersQueryBuilder {
	limit := criteria.ItemsPerPage() + 1
	offset := criteria.ItemsToSkip()

	q.addParameter("LIMIT $%d", limit)

	if offset > 0 {
		q.addParameter("OFFSET $%d", offset)
	}

	return q
}

// Build returns the final SQL query and arguments
func (q *MembersQueryBuilder) Build() (string, []any) {
	return q.sql, q.args
}

// addWhereCondition adds a WHERE condition, handling AND logic automatically
func (q *MembersQueryBuilder) addWhereCondition(sqlClause string, value any) {
	placeholder := q.nextPlaceholder()

	if q.hasWhereClause() {
		q.sql += " AND " + fmt.Sprintf(sqlClause, placeholder)
	} else {
		q.sql += " WHERE " + fmt.Sprintf(sqlClause, placeholder)
	}

	q.args = append(q.args, value)
}

func (q *MembersQueryBuilder) addParameter(sqlClause string, value any) {
	placeholder := q.nextPlaceholder()
	q.sql += " " + fmt.Sprintf(sqlClause, placeholder)
	q.args = append(q.args, value)
}

func (q *MembersQueryBuilder) hasWhereClause() bool {
	return len(q.args) > 0
}

// nextPlaceholder returns the next PostgreSQL placeholder ($1, $2, etc.)
func (q *MembersQueryBuilder) nextPlaceholder() int {
	return len(q.args) + 1
}
