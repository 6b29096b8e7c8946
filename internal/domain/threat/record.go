// Package threat contains the pure, deterministic core of the merge
// subsystem: extraction of threat records from loosely structured Markdown,
// lexical duplicate detection, and heuristic risk scoring.  Nothing in this
// package performs I/O or holds state; every function is a pure function of
// its inputs.
package threat

// UntitledTitle is the fallback title assigned to an extracted record whose
// heading could not be recovered.
const UntitledTitle = "Untitled Threat"

// Record is one threat unit extracted from a threat model.  It is the value
// being deduplicated during a merge; persistence concerns (IDs, provenance,
// risk score) live on the threatmodel.Threat entity.
type Record struct {
	Title       string
	Description string
	Mitigation  string
}
