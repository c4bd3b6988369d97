// Package speech prepares utterance text for a synthesis engine. It only
// changes what is read aloud; transcripts keep the original text.
package speech
