package types

import "strings"

// IDFromParts builds the deterministic composite identifier used for
// idempotent event writes. The same (serviceName, activityID) pair always maps
// to the same document id, so re-imports overwrite rather than duplicate.
func IDFromParts(parts ...string) string {
	return strings.Join(parts, "_")
}
