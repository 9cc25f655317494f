// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import "github.com/ManuGH/pvrd/internal/fsm"

// State is the lifecycle position of one reservation inside the engine.
type State string

const (
	StateScheduled       State = "scheduled"
	StatePrepping        State = "prepping"
	StateRecording       State = "recording"
	StateFinishing       State = "finishing"
	StateCompleted       State = "completed"
	StateFailedPrep      State = "failed_prep"
	StateFailedRecording State = "failed_recording"
	StateCanceled        State = "canceled"
)

type Event string

const (
	EventPrep         Event = "prep"
	EventFirstPacket  Event = "first_packet"
	EventStop         Event = "stop"
	EventFinished     Event = "finished"
	EventPrepFailed   Event = "prep_failed"
	EventStreamFailed Event = "stream_failed"
	EventCancel       Event = "cancel"
)

var lifecycle = fsm.MustTable([]fsm.Transition[State, Event]{
	{From: StateScheduled, Event: EventPrep, To: StatePrepping},
	{From: StateScheduled, Event: EventCancel, To: StateCanceled},
	{From: StatePrepping, Event: EventFirstPacket, To: StateRecording},
	{From: StatePrepping, Event: EventPrepFailed, To: StateFailedPrep},
	{From: StatePrepping, Event: EventCancel, To: StateCanceled},
	{From: StateRecording, Event: EventStop, To: StateFinishing},
	{From: StateRecording, Event: EventStreamFailed, To: StateFailedRecording},
	{From: StateFinishing, Event: EventFinished, To: StateCompleted},
})

func newMachine() *fsm.Machine[State, Event] {
	return fsm.New(StateScheduled, lifecycle)
}

// outcome is the metrics label of a terminal state.
func outcome(s State) string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateFailedPrep:
		return "failed_prep"
	case StateFailedRecording:
		return "failed_recording"
	default:
		return "canceled"
	}
}
