// Package stream serves camera frames over HTTP.
//
// Stream writes an endless multipart/x-mixed-replace response, one JPEG
// part per frame, until the client goes away or the camera stops
// producing. Snapshot writes a single JPEG.
//
// Every frame acquired from the camera.Driver is released exactly once,
// whichever way the request ends. Raw frames are transcoded to JPEG on the
// way out; JPEG frames are written without copying.
package stream
