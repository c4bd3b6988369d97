// Package orchestrator turns one utterance at a time into audible speech.
//
// An AudioOrchestrator resolves audio for the utterance (cache first, then
// the synthesis engine), hands it to an audio player and reports a
// PlaybackState that a queue can poll. The state machine is
//
//	Idle -> Play -> Playing <-> Paused -> (finish | Stop | SkipToNext) -> Idle
//
// and every failure path returns to Idle, so a failed item never holds the
// queue.
package orchestrator
