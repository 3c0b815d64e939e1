// Package media inspects input files and produces speech-optimized audio.
//
// Prober wraps ffprobe to report duration, encoded size, and audio stream
// properties as an immutable File. Encoder wraps ffmpeg to re-encode whole
// files or time ranges into mono 16 kHz Ogg Vorbis, the format every segment
// sent for transcription uses.
package media
