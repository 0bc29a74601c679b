package topology

import "fmt"

// ErrInvalidArgument signals a per-line failure: degenerate geometry,
// non-linestring input, or a tolerance too tight to produce two
// distinct points. The caller rolls back and continues with the next
// line.
type ErrInvalidArgument struct {
	Reason string
}

func (e *ErrInvalidArgument) Error() string {
	return fmt.Sprintf("topology: invalid argument: %s", e.Reason)
}

func invalidArgument(reason string) error {
	return &ErrInvalidArgument{Reason: reason}
}

// ErrStructural signals a detected invariant violation (inconsistent
// ring relink, non-planar intersection that cannot be resolved). The
// caller rolls back and abandons the whole zone.
type ErrStructural struct {
	Reason string
}

func (e *ErrStructural) Error() string {
	return fmt.Sprintf("topology: structural failure: %s", e.Reason)
}

func structuralError(reason string) error {
	return &ErrStructural{Reason: reason}
}
