// Package localid mints and recognises local-temporary identifiers.
//
// An entity created while the remote store is unreachable gets an id of the
// form "local_<unixMillis>_<random>". Once the remote store assigns a real
// document id the entry is promoted and the prefix disappears.
package localid

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix marks an identifier as client-generated and not yet acknowledged
// by the remote store.
const Prefix = "local_"

// New returns a fresh local-temporary identifier.
func New() string {
	return Prefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + uuid.NewString()[:8]
}

// Is reports whether id carries the local-temporary prefix.
func Is(id string) bool {
	return strings.HasPrefix(id, Prefix)
}

// Strip removes the local prefix so the id can address the remote document
// that a not-yet-promoted record will map to. Non-local ids pass through.
func Strip(id string) string {
	return strings.TrimPrefix(id, Prefix)
}
