// Package parser splits multi-speaker responses into ordered utterances and
// resolves each named speaker against the meeting's participants.
package parser
