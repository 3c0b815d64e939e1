// Command chunkscribe transcribes long audio and video files with a remote
// speech-recognition service.
//
// Inputs larger than the service's upload limit are cut into segments on
// nearby silence, transcribed concurrently, and stitched back into a single
// plain-text transcript and an optional SRT subtitle file.
//
// Subcommands:
//
//	transcribe   run the pipeline for one or more files
//	plan         show the segment plan without calling the service
//	history      list or prune recorded runs
//	status       check ffmpeg, directories, and service credentials
//	serve        expose the local HTTP API
//	logs         print or follow the log file
//	config       create, show, or validate the configuration file
package main
