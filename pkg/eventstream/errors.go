package eventstream

import "errors"

// ErrNilSeriesEvent indicates a nil series event payload was provided to a publisher.
var ErrNilSeriesEvent = errors.New("nil series event")
