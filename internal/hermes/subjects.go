package hermes

const (
	SubjectRunAll = "allot.run.>"

	StreamName   = "ALLOT_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectRunCompleted(runID string) string { return "allot.run." + runID + ".completed" }
func SubjectRunFailed(runID string) string    { return "allot.run." + runID + ".failed" }
