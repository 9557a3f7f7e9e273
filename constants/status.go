package constants

// AttemptStatus is the canonical status for rows in conversion_attempt.
type AttemptStatus string

// Stable values (store these exact strings in DB).
const (
	AttemptStatusQueued    AttemptStatus = "QUEUED"    // accepted by the warm queue
	AttemptStatusRunning   AttemptStatus = "RUNNING"   // pipeline started
	AttemptStatusConverted AttemptStatus = "CONVERTED" // artifact set materialized
	AttemptStatusCached    AttemptStatus = "CACHED"    // served from an existing artifact set
	AttemptStatusFailed    AttemptStatus = "FAILED"    // terminal failure, key directory removed
)

// Stage names reported by conversion failures.
const (
	StageOfficeToPDF = "office-to-pdf"
	StageRasterize   = "rasterize"
)
