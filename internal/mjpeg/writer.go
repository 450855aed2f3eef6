package mjpeg

import (
	"fmt"
	"io"
)

// Boundary is the multipart boundary used for the MJPEG stream.
const Boundary = "frame"

// ContentType is the response Content-Type for the MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// writePart writes one multipart frame part:
//
//	--frame\r\n
//	Content-Type: image/jpeg\r\n
//	Content-Length: <n>\r\n
//	\r\n
//	<jpeg bytes>\r\n
func writePart(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
