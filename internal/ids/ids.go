package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique ID, used for login attempt IDs and
// anywhere else a generated identifier is needed.
func New() string {
	return ksuid.New().String()
}
