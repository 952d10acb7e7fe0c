package constants

// RunState is the canonical state of a document-processing run.
type RunState string

// Stable values (store these exact strings in DB).
const (
	RunIdle          RunState = "IDLE"
	RunClassifying   RunState = "CLASSIFYING"   // scoring every page
	RunSelecting     RunState = "SELECTING"     // ranking and truncating the page set
	RunExtracting    RunState = "EXTRACTING"    // pooled extraction calls
	RunDegraded      RunState = "DEGRADED"      // pool fault, sequential fallback engaged
	RunConsolidating RunState = "CONSOLIDATING" // merging per-page results
	RunDone          RunState = "DONE"
	RunFailed        RunState = "FAILED" // terminal failure (rendering/input fault)
)

// Skip reasons recorded in run diagnostics for pages that were selected but
// never extracted.
const (
	SkipReasonBudget   = "skipped: budget"
	SkipReasonDeadline = "skipped: deadline"
)
