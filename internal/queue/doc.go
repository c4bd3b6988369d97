// Package queue sequences utterances through an orchestrator one at a time.
//
// A PlaybackQueue keeps a FIFO of pending utterances. Its processing loop
// pops the head, resolves the speaker, notifies subscribers and hands the
// utterance to the orchestrator, then polls the orchestrator until nothing
// is in flight before taking the next one. Later EnqueueAndProcess calls
// only append, so earlier batches always drain first.
package queue
