package synchronizer

import (
	"time"

	"github.com/vk/hotsync/internal/fetcher"
)

// Recorder receives run statistics. internal/metrics implements it with
// Prometheus collectors.
type Recorder interface {
	RunFinished(result RunResult, elapsed time.Duration)
	FetchFinished(outcome fetcher.Outcome)
	CaptureFailures(n int)
	RestoreFailures(n int)
	MalformedNotification()
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(RunResult, time.Duration) {}
func (nopRecorder) FetchFinished(fetcher.Outcome)         {}
func (nopRecorder) CaptureFailures(int)                   {}
func (nopRecorder) RestoreFailures(int)                   {}
func (nopRecorder) MalformedNotification()                {}
func (nopRecorder) QueueDepth(int)                        {}
