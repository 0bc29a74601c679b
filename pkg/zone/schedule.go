package zone

// GetNextGroups consumes from the front of groups the maximal prefix
// sharing the depth of the first group, returning that prefix and the
// remainder. groups must already be sorted so equal-depth runs are
// contiguous (Partition returns them sorted deepest-first). This is a
// direct port of merge.cpp's get_next_groups: each call yields one
// round's worth of independent 4-groups.
func GetNextGroups(groups []DepthGroup) (round []DepthGroup, rest []DepthGroup) {
	if len(groups) == 0 {
		return nil, groups
	}
	depth := groups[0].Depth
	i := 0
	for i < len(groups) && groups[i].Depth == depth {
		i++
	}
	return groups[:i], groups[i:]
}
