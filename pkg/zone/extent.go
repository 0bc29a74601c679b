package zone

import "context"

// ExtentSource answers the single query needed to auto-discover the
// world extent when the operator doesn't pass one explicitly: the
// minimal envelope enclosing every source line. Ported from
// original_source/main.cpp's implicit reliance on a global world_geom()
// (SPEC_FULL.md §4 item 5).
type ExtentSource interface {
	WorldExtent(ctx context.Context) (Envelope, error)
}

// WorldExtentFrom queries src for the minimal enclosing envelope of all
// source lines, for use as the partitioner's root world extent when no
// explicit --extent flag was given.
func WorldExtentFrom(ctx context.Context, src ExtentSource) (Envelope, error) {
	return src.WorldExtent(ctx)
}
