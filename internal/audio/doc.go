// Package audio plays synthesized PCM clips. Player drives the system audio
// device through oto; MockPlayer keeps the same contract on timers for tests
// and silent runs.
package audio
