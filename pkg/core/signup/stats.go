package signup

// SignupStats is a derived aggregate of a shift's occupancy. Nil pointer
// fields mean "no constraint": a nil Free means unlimited capacity remains,
// nil MinCount/MaxCount mean no bound was configured.
type SignupStats struct {
	RequestedCount int
	ConfirmedCount int

	// Missing is the shortfall below the configured minimum, never negative.
	Missing int

	// Free is the remaining capacity below the configured maximum.
	Free *int

	MinCount *int
	MaxCount *int
}

// ZeroStats is the identity element for Add: an empty, zero-capacity shift.
func ZeroStats() SignupStats {
	zero := 0
	return SignupStats{Free: &zero, MaxCount: &zero}
}

// HasFree reports whether at least one spot is open.
func (s SignupStats) HasFree() bool {
	return s.Free == nil || *s.Free > 0
}

// Add combines two stats component-wise. The combination is commutative and
// associative so shifts of an event can be aggregated in any order.
//
// MinCount treats a missing bound as 0 whenever the other operand has one, so
// a bound always tightens the combined figure. MaxCount and Free stay nil if
// either operand is nil: one uncapped shift makes the aggregate uncapped.
func (s SignupStats) Add(o SignupStats) SignupStats {
	out := SignupStats{
		RequestedCount: s.RequestedCount + o.RequestedCount,
		ConfirmedCount: s.ConfirmedCount + o.ConfirmedCount,
		Missing:        s.Missing + o.Missing,
	}
	if s.Free != nil && o.Free != nil {
		free := *s.Free + *o.Free
		out.Free = &free
	}
	if s.MinCount != nil || o.MinCount != nil {
		min := orZero(s.MinCount) + orZero(o.MinCount)
		out.MinCount = &min
	}
	if s.MaxCount != nil && o.MaxCount != nil {
		max := *s.MaxCount + *o.MaxCount
		out.MaxCount = &max
	}
	return out
}

// Reduce folds a list of stats into one aggregate figure.
func Reduce(stats []SignupStats) SignupStats {
	out := ZeroStats()
	for _, s := range stats {
		out = out.Add(s)
	}
	return out
}

func orZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
