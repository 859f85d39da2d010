package db

// Recorder receives run history from the orchestrator. *DB implements it.
type Recorder interface {
	StartRun(r Run) error
	FinishRun(id, status, taskKind string, iterations int, summary string) error
	LogPipelineEvent(runID, event, node string, iteration int, detail string) error
	LogVerifyRun(v VerifyRun) error
}

var _ Recorder = (*DB)(nil)

// Nop discards history.
type Nop struct{}

func (Nop) StartRun(Run) error { return nil }
func (Nop) FinishRun(string, string, string, int, string) error { return nil }
func (Nop) LogPipelineEvent(string, string, string, int, string) error { return nil }
func (Nop) LogVerifyRun(VerifyRun) error { return nil }
