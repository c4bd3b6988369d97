package orchestrator

import (
	"github.com/baskills/meetingvoice/internal/ttypes"
)

// event is something that moves the playback state.
type event int

const (
	evStart  event = iota // item loaded with auto start
	evLoad                // item loaded paused
	evPause               // user pause
	evResume              // user resume
	evFinish              // natural end, error, stop or skip
)

func (e event) String() string {
	switch e {
	case evStart:
		return "start"
	case evLoad:
		return "load"
	case evPause:
		return "pause"
	case evResume:
		return "resume"
	case evFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// transitions maps each state to the events it accepts and where they lead.
// Events missing from a state's row are no-ops there.
var transitions = map[ttypes.State]map[event]ttypes.State{
	ttypes.StateIdle: {
		evStart: ttypes.StatePlaying,
		evLoad:  ttypes.StatePaused,
	},
	ttypes.StatePlaying: {
		evPause:  ttypes.StatePaused,
		evFinish: ttypes.StateIdle,
	},
	ttypes.StatePaused: {
		evResume: ttypes.StatePlaying,
		evFinish: ttypes.StateIdle,
	},
}

// next returns the state ev leads to from from, or false when from does not
// accept ev.
func next(from ttypes.State, ev event) (ttypes.State, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// stateFor builds the snapshot for state s holding item id.
func stateFor(s ttypes.State, id string) ttypes.PlaybackState {
	switch s {
	case ttypes.StatePlaying:
		return ttypes.PlaybackState{IsPlaying: true, CurrentItemID: id}
	case ttypes.StatePaused:
		return ttypes.PlaybackState{IsPaused: true, CurrentItemID: id}
	default:
		return ttypes.PlaybackState{}
	}
}
