// Package subtitles formats and parses SubRip (SRT) cue lists.
//
// Timestamps use the SRT form HH:MM:SS,mmm. Parsing also accepts a period
// before the milliseconds, which some tools emit.
package subtitles
