// Package synth holds the two speech backends: the paid network provider,
// which returns cacheable PCM and consumes quota, and the local piper
// fallback, which speaks directly and resolves an Utterance when done.
package synth
