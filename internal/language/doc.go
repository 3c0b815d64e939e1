// Package language normalizes the language hints sent to the transcription
// service.
//
// The service expects ISO 639-1 codes. Hints arrive from config files, CLI
// flags, API requests, and container stream tags in every shape ("en",
// "eng", "English", "en-US"), so all conversions go through this package.
package language
