package gc

import "errors"

// ErrPassInProgress is returned by Collector.Run while another pass holds
// the collection lock for the same cache.
var ErrPassInProgress = errors.New("gc pass already in progress")
