// Command whispersub generates subtitles for whatever mpv is playing,
// writing them window by window so the player can show them while the
// rest of the file is still being transcribed.
//
// Usage:
//
//	whispersub run [PATH]          monitor a player (launching it unless mpv.start_mpv = false)
//	whispersub direct PATH         transcribe a file once without a player
//	whispersub ctl toggle          send a command to the running monitor
//	whispersub status              show the monitor state
//	whispersub diag export [DIR]   bundle the diagnostic log
//	whispersub config init|show    manage the configuration file
package main
