package camera

import "bytes"

// JPEG markers.
var (
	markerSOI = []byte{0xff, 0xd8}
	markerEOI = []byte{0xff, 0xd9}
)

// SplitJPEG is a bufio.SplitFunc yielding one complete JPEG per token from
// a concatenated MJPEG byte stream. Bytes before a start-of-image marker
// are skipped.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, markerSOI)
	if start < 0 {
		// Keep a trailing 0xff in case it begins a marker.
		if len(data) > 0 && !atEOF {
			return len(data) - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(markerSOI):], markerEOI)
	if end < 0 {
		if atEOF {
			// Truncated final frame.
			return len(data), nil, nil
		}
		// Drop leading garbage and wait for more.
		return start, nil, nil
	}

	end += start + len(markerSOI) + len(markerEOI)
	return end, data[start:end], nil
}
