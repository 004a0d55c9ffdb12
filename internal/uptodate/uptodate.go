// Package uptodate implements the up-to-date predicate from spec section
// 4.2: a pure function over a dependency set, an artifact set and the
// Edit-time Oracle that decides whether a set of artifacts must be
// rebuilt.
package uptodate

import (
	"time"

	"github.com/abs-build/abs/internal/edittime"
)

// ShouldRebuild implements spec section 4.2's contract:
//
//  1. newest_dep = max(edit_time(d, +inf) for d in dependencies)
//  2. oldest_art = min(edit_time(a, 0) for a in artifacts)
//  3. return newest_dep > oldest_art
//  4. if true, forget every artifact path from the oracle
//
// An empty dependency set yields newest_dep = zero time; an empty artifact
// set yields oldest_art = zero time. Both empty simultaneously yields
// false (not stale), per the strict inequality.
func ShouldRebuild(oracle *edittime.Oracle, dependencies, artifacts []string) (bool, error) {
	newestDep, err := extreme(oracle, dependencies, edittime.DependencyFallback(), after)
	if err != nil {
		return false, err
	}
	oldestArt, err := extreme(oracle, artifacts, edittime.ArtifactFallback(), before)
	if err != nil {
		return false, err
	}
	rebuild := newestDep.After(oldestArt)
	if rebuild {
		for _, a := range artifacts {
			oracle.Forget(a)
		}
	}
	return rebuild, nil
}

func after(a, b time.Time) bool  { return a.After(b) }
func before(a, b time.Time) bool { return a.Before(b) }

// extreme returns the time.Time among paths' edit times (each defaulting to
// fallback when missing) that wins according to better(candidate, best). An
// empty paths slice returns the zero time.Time, matching spec section 4.2's
// "empty set" cases.
func extreme(oracle *edittime.Oracle, paths []string, fallback time.Time, better func(candidate, best time.Time) bool) (time.Time, error) {
	var best time.Time
	for i, p := range paths {
		t, err := oracle.EditTime(p, fallback)
		if err != nil {
			return time.Time{}, err
		}
		if i == 0 || better(t, best) {
			best = t
		}
	}
	return best, nil
}
