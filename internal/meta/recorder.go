package meta

import "time"

// Report outcomes passed to Recorder.ReportHandled.
const (
	ResultAccepted        = "accepted"
	ResultStandby         = "standby"
	ResultRejected        = "rejected"
	ResultClusterMismatch = "cluster_mismatch"
)

// Recorder receives heartbeat events. The prometheus collector implements it.
type Recorder interface {
	SessionOpened()
	SessionClosed(reason CloseReason)
	ReportHandled(result string, elapsed time.Duration)
	AckDropped()
	InstructionsDispatched(n int)
	NodesSwept(n int)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened()                      {}
func (nopRecorder) SessionClosed(CloseReason)           {}
func (nopRecorder) ReportHandled(string, time.Duration) {}
func (nopRecorder) AckDropped()                         {}
func (nopRecorder) InstructionsDispatched(int)          {}
func (nopRecorder) NodesSwept(int)                      {}

// NopRecorder discards every event.
var NopRecorder Recorder = nopRecorder{}
