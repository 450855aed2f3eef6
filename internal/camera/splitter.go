package camera

import (
	"bufio"
	"bytes"
	"io"
)

var (
	jpegHeader  = []byte{0xFF, 0xD8}
	jpegTrailer = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a single JPEG frame read from the encoder. High
// resolution, high quality frames run to a few hundred KB; 8MB leaves
// generous headroom.
const maxFrameSize = 8 << 20

// mjpegSplitFunc splits an MJPEG byte stream into individual JPEG frames
// by finding the JPEG trailer bytes at the end of each frame. It is used
// as a bufio.SplitFunc for bufio.Scanner.
func mjpegSplitFunc(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, jpegTrailer); i >= 0 {
		return i + 2, data[0 : i+2], nil
	}

	// Request more data.
	return 0, nil, nil
}

// splitFrames reads the encoder's stdout and calls emit once per complete
// JPEG frame. Fragments that don't start with a JPEG header (partial
// first frame after a mid-stream attach) are discarded. The emitted slice
// is a copy owned by the callee.
func splitFrames(r io.Reader, emit func(frame []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	scanner.Split(mjpegSplitFunc)

	for scanner.Scan() {
		raw := scanner.Bytes()

		// Resync on the JPEG header in case the stream was joined
		// mid-frame.
		start := bytes.Index(raw, jpegHeader)
		if start < 0 {
			continue
		}

		frame := make([]byte, len(raw)-start)
		copy(frame, raw[start:])
		emit(frame)
	}
	return scanner.Err()
}
