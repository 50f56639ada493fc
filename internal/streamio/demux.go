package streamio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// Frame is one decoded chunk of container output. At most one of the two
// slots is set; a frame with both slots nil carries nothing.
type Frame struct {
	Stdout []byte
	Stderr []byte
}

// FrameReader yields container output frames in arrival order. Next returns
// io.EOF at the orderly end of the stream; any other error signals abrupt
// termination.
type FrameReader interface {
	Next() (Frame, error)
}

// Stream descriptors used in the multiplex header, matching the engine's
// stdcopy framing.
const (
	streamStdout byte = 1
	streamStderr byte = 2

	// headerLen is the frame header size: one descriptor byte, three
	// padding bytes, four bytes of big-endian payload length.
	headerLen = 8
)

type demuxReader struct {
	r      io.Reader
	header [headerLen]byte
}

// NewDemuxReader decodes the engine's multiplexed attach/logs stream
// (produced when the container runs without a TTY) into frames.
func NewDemuxReader(r io.Reader) FrameReader {
	return &demuxReader{r: r}
}

func (d *demuxReader) Next() (Frame, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	size := binary.BigEndian.Uint32(d.header[4:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Frame{}, err
	}

	switch d.header[0] {
	case streamStdout:
		return Frame{Stdout: payload}, nil
	case streamStderr:
		return Frame{Stderr: payload}, nil
	default:
		return Frame{}, fmt.Errorf("unknown stream descriptor %d in output frame", d.header[0])
	}
}

// WriteContainerOutput drains frames into the given sinks until the stream
// ends. Absent frame slots contribute nothing to their sink. The stream
// commonly terminates abruptly once the container exits (broken pipe,
// truncated frame); such errors are expected and swallowed.
func WriteContainerOutput(frames FrameReader, stdout, stderr *StreamWriter) {
	for {
		frame, err := frames.Next()
		if err != nil {
			if err != io.EOF {
				log.Debug("container output stream terminated", "error", err)
			}
			return
		}

		if frame.Stdout != nil {
			if err := stdout.WriteString(string(frame.Stdout)); err != nil {
				log.Debug("failed to write container stdout", "error", err)
			}
		}
		if frame.Stderr != nil {
			if err := stderr.WriteString(string(frame.Stderr)); err != nil {
				log.Debug("failed to write container stderr", "error", err)
			}
		}
	}
}
