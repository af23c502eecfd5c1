// Package audio plays signed 16-bit PCM through the system output using
// oto/v3, and defines the Output contract the playback engine drives: an
// acquirable channel with play, pause, resume and stop, where each Play
// returns a single-shot completion.
package audio
