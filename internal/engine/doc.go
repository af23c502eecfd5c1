// Package engine is the playback state machine. Every transition runs on
// the goroutine executing Run. Synthesis, cache and persistence work runs
// elsewhere and posts its result back before any state changes.
//
//	Play ──▶ Loading ──▶ Playing ⇄ Paused
//	            │           │
//	            ▼           ▼ (last unit)
//	          Error      Finished ──▶ Idle (auto-continue off)
//
// Controls are closures sent on a channel and executed by Run. Background
// goroutines (premium synthesis, cache reads, local speech, prefetch) post
// their results the same way, tagged with the generation of the unit that
// started them; a result whose generation is no longer current is
// discarded.
package engine
