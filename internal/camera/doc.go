// Package camera lends captured frames from a fixed set of buffers.
//
// A Pool owns Buffers frames and fills one from its Source on every
// Acquire. Callers hold a frame exclusively until Release; when every
// buffer is out, Acquire waits up to the grab timeout and then fails with
// ErrNoFrame. Lease wraps a borrowed frame so it is released exactly once
// regardless of which error path the caller takes.
//
// Two sources are provided:
//   - TestPattern renders a moving pattern with a timestamp overlay in
//     raw RGB, grayscale or JPEG.
//   - FFmpeg runs a supervised ffmpeg process writing MJPEG to stdout and
//     splits the stream into frames.
//
// Raw frames are transcoded to JPEG on demand with Encode or EncodeTo.
package camera
