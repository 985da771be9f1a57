package ingest

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stage names a step of a submission
type Stage string

const (
	StageValidate Stage = "validate"
	StageIdentify Stage = "identify"
	StageExtract  Stage = "extract"
	StagePersist  Stage = "persist"
	StageLink     Stage = "link"
	// StageSubmit is emitted once per submission with its final outcome
	StageSubmit Stage = "submit"
)

// Outcomes carried by events. Failed stages report the error kind instead.
const (
	OutcomeOK       = "ok"
	OutcomeCacheHit = "cache_hit"
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
)

// Event describes one step of a submission
type Event struct {
	Stage    Stage
	UserID   string
	URL      string
	TalkID   string
	VideoID  uint
	Outcome  string
	Err      error
	Duration time.Duration
}

// Observer receives submission events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls f(e)
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Observers fans events out to every non-nil observer
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

// LogObserver writes events to the global zerolog logger
type LogObserver struct{}

// Observe logs stage completions at debug level and submissions at info,
// or warn when they failed
func (LogObserver) Observe(e Event) {
	var ev *zerolog.Event
	switch {
	case e.Stage != StageSubmit:
		ev = log.Debug()
	case e.Err != nil:
		ev = log.Warn().Err(e.Err)
	default:
		ev = log.Info()
	}

	ev.Str("stage", string(e.Stage)).
		Str("userId", e.UserID).
		Str("url", e.URL).
		Str("outcome", e.Outcome).
		Dur("duration", e.Duration)
	if e.TalkID != "" {
		ev.Str("talkId", e.TalkID)
	}
	if e.VideoID != 0 {
		ev.Uint("videoId", e.VideoID)
	}
	if e.Stage != StageSubmit && e.Err != nil {
		ev.AnErr("stageErr", e.Err)
	}
	ev.Msg("Ingestion event")
}
