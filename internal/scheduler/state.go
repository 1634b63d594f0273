package scheduler

import (
	"errors"

	"github.com/tanq16/linkrelay/internal/router"
)

type State string

const (
	StateStarted     State = "started"
	StateRouting     State = "routing"
	StateDownloading State = "downloading"
	StateZipping     State = "zipping"
	StateSizeCheck   State = "size_check"
	StateHandoff     State = "handoff"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

var (
	ErrNothingSupported  = errors.New("no supported download URLs")
	ErrNothingDownloaded = errors.New("no files were downloaded")
	ErrResultTooLarge    = errors.New("result exceeds transfer limit")
)

// Outcome records what happened to one URL of the batch.
type Outcome struct {
	URL  string
	Type router.LinkType
	Path string
	Size int64
	Err  error
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.Path != ""
}

// Report describes how a batch ended. State is StateDone or StateFailed; FailedAt
// names the step that was running when a failure ended the batch.
type Report struct {
	SessionID  string
	State      State
	FailedAt   State
	Outcomes   []Outcome
	ResultPath string
	ResultName string
	Size       int64
	Err        error
}

func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}
