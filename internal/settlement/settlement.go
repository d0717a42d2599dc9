// Package settlement holds the pure arithmetic behind delivery-fee
// splitting and post-completion refunds.  All amounts are integer
// currency units; division rounds up so that rounding always favors
// the pool and a member never pays less than their exact share.
package settlement

// ShareOf returns one member's portion of the total delivery fee when
// split across memberCount people, rounded up to a whole currency
// unit.  By convention it returns 0 when memberCount is not positive;
// callers must guard the zero-member case before moving money, since
// a live meeting always has at least its leader.
func ShareOf(totalFee, memberCount int64) int64 {
	if memberCount <= 0 {
		return 0
	}
	return (totalFee + memberCount - 1) / memberCount
}

// RefundOf returns the per-member point credit owed after a meeting
// completes.  Members are charged against minMembers at join time; if
// actualMembers ended up larger, each member's true share is smaller
// and the difference comes back.  Never negative: a meeting that
// finishes exactly at the minimum refunds nothing.
func RefundOf(totalFee, minMembers, actualMembers int64) int64 {
	refund := ShareOf(totalFee, minMembers) - ShareOf(totalFee, actualMembers)
	if refund < 0 {
		return 0
	}
	return refund
}
