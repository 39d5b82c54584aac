// Package audio decodes a media source and cuts its audio track into
// fixed-duration, time-ordered windows of mono float samples ready for a
// speech engine.
//
// Decoding is delegated to a Decoder (ffmpeg in production). Each window is
// resampled by its own Resampler, created when the window's first frame
// arrives and closed before the next window starts, so filter state never
// leaks across a window boundary.
package audio
