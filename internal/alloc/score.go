package alloc

// Score computes an item's claim priority from the request's explicit
// priority and its age at allocation time. Higher scores claim first; ties
// break on allocation time, oldest first. The result is clamped to be
// non-negative so the inverted index key keeps its ordering.
func Score(priority, createdMs, nowMs, priorityWeight, ageWeight int64) int64 {
	ageSec := (nowMs - createdMs) / 1000
	if ageSec < 0 {
		ageSec = 0
	}
	s := priority*priorityWeight + ageSec*ageWeight
	if s < 0 {
		s = 0
	}
	return s
}

// LeaseFor returns the lease duration granted to a claim. Kept as a seam so
// lease policy can depend on the item's score without touching the claim
// path; today every claim gets the configured base.
func LeaseFor(score, baseMs int64) int64 {
	return baseMs
}
