package pattern

import "errors"

var (
	// ErrInvalidDef marks a malformed pattern specification.
	ErrInvalidDef = errors.New("invalid pattern definition")

	// ErrEmptyPanel marks a panel whose numeric form has no non-padding rows.
	ErrEmptyPanel = errors.New("panel has no edges")

	// ErrPanelTooLong marks a panel that exceeds the requested padded length.
	ErrPanelTooLong = errors.New("panel exceeds padded edge count")
)
