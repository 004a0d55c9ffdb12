// Package edittime implements the memoised last-write-time query described
// in spec section 4.1: it underlies every up-to-date check in the build.
//
// The caching strategy is grounded in the teacher's glob cache
// (internal/build/glob.go's globCache), generalized from a single-purpose
// package-name memo to a general path -> time.Time cache with explicit
// invalidation.
package edittime

import (
	"os"
	"sync"
	"time"
)

// Oracle is a process-local, mutex-guarded cache of path -> last-write-time.
// A zero Oracle is ready to use.
type Oracle struct {
	mu    sync.Mutex
	times map[string]time.Time
}

// New returns a ready-to-use Oracle.
func New() *Oracle {
	return &Oracle{times: make(map[string]time.Time)}
}

// EditTime returns the last-write time of path, or fallback if path does
// not exist. Any other stat error is returned. Results are cached until
// Forget is called for that path.
func (o *Oracle) EditTime(path string, fallback time.Time) (time.Time, error) {
	o.mu.Lock()
	if t, ok := o.times[path]; ok {
		o.mu.Unlock()
		return t, nil
	}
	o.mu.Unlock()

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return time.Time{}, err
	}

	t := fi.ModTime()
	o.mu.Lock()
	if o.times == nil {
		o.times = make(map[string]time.Time)
	}
	o.times[path] = t
	o.mu.Unlock()
	return t, nil
}

// Forget evicts path from the cache. Called after any operation that
// (re)writes path, so a subsequent EditTime call observes the new time.
func (o *Oracle) Forget(path string) {
	o.mu.Lock()
	delete(o.times, path)
	o.mu.Unlock()
}

// DependencyFallback is the sentinel used when querying a dependency: a
// missing dependency is assumed newest, forcing a rebuild.
func DependencyFallback() time.Time {
	return maxTime
}

// ArtifactFallback is the sentinel used when querying an artifact: a
// missing artifact is assumed oldest, forcing a rebuild.
func ArtifactFallback() time.Time {
	return time.Time{}
}

// maxTime is used as "assume newest" for a missing dependency. time.Time's
// zero value already serves as "assume oldest" for a missing artifact.
var maxTime = time.Unix(1<<62, 0)
