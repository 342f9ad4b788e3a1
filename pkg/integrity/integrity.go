// Package integrity checks a kiln store for internal consistency.
//
// The checks cover the invariants the runtime maintains across the three
// durable spaces: every latest pointer resolves to a data entry, no data
// entry sits above its resource's latest version, and every rollback pointer
// is well formed. The kiln binary exposes them as `kiln verify`.
package integrity

import (
	"fmt"

	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/store"
)

// Report summarizes a store scan.
type Report struct {
	LatestPtrs   int
	DataEntries  int
	RollbackPtrs int
	Problems     []string
}

// OK reports whether the scan found no inconsistencies.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problemf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Check scans the whole store and returns a report. It takes a consistent
// reader; run it against a quiesced runtime (or a closed store reopened
// read-only), not one with writes in flight.
func Check(r store.Reader) *Report {
	report := &Report{}
	latest := checkLatestPtrs(r, report)
	checkDataEntries(r, report, latest)
	checkRollbackPtrs(r, report)
	return report
}

// checkLatestPtrs verifies every latest pointer resolves to a live data
// entry, and returns the id -> version map for the data scan.
func checkLatestPtrs(r store.Reader, report *Report) map[string]uint64 {
	latest := make(map[string]uint64)
	r.PrefixScan(store.SpaceLatestPtr, nil, func(key, value []byte) bool {
		report.LatestPtrs++
		if len(value) < 8 {
			report.problemf("latest ptr %x: truncated version value", key)
			return true
		}
		version := state.DecodeVersion(value)
		if version == 0 {
			report.problemf("latest ptr %x: version 0 must be expressed by absence", key)
			return true
		}
		latest[string(key)] = version

		if _, ok := r.Get(store.SpaceData, state.DataKey(version, key)); !ok {
			report.problemf("latest ptr %x: missing data entry for version %d", key, version)
		}
		return true
	})
	return latest
}

// checkDataEntries verifies data keys are well formed, deserializable, and
// never newer than their resource's latest pointer.
func checkDataEntries(r store.Reader, report *Report, latest map[string]uint64) {
	r.PrefixScan(store.SpaceData, nil, func(key, value []byte) bool {
		report.DataEntries++
		if len(key) <= 8 {
			report.problemf("data key %x: shorter than its version prefix", key)
			return true
		}
		version, idBytes := state.SplitPrefixedKey(key)
		if _, err := state.UnmarshalState(value); err != nil {
			report.problemf("data %x@v%d: corrupt state: %v", idBytes, version, err)
		}

		current, ok := latest[string(idBytes)]
		if !ok {
			report.problemf("data %x@v%d: orphaned, resource has no latest ptr", idBytes, version)
		} else if version > current {
			report.problemf("data %x@v%d: newer than latest version %d", idBytes, version, current)
		}
		return true
	})
}

// checkRollbackPtrs verifies rollback pointer shape.
func checkRollbackPtrs(r store.Reader, report *Report) {
	r.PrefixScan(store.SpaceRollbackPtr, nil, func(key, value []byte) bool {
		report.RollbackPtrs++
		if len(key) <= 8 {
			report.problemf("rollback ptr key %x: shorter than its batch prefix", key)
			return true
		}
		if len(value) < 8 {
			report.problemf("rollback ptr %x: truncated version value", key)
		}
		return true
	})
}
