// Package cache stores synthesized clips keyed by (text, voice) so that a
// line spoken twice by the same participant is synthesized once. A memory
// LRU sits in front of a zstd-compressed disk store.
package cache
