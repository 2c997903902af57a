package remote

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/grit-scm/grit/pkg/pktline"
)

// Channel identifies a sideband multiplexing channel. Every frame in a
// sideband stream carries exactly one channel byte before its payload.
type Channel byte

const (
	// ChannelData carries pack bytes.
	ChannelData Channel = 1
	// ChannelProgress carries human-readable progress text.
	ChannelProgress Channel = 2
	// ChannelFatal carries a fatal server error; the transfer is aborted.
	ChannelFatal Channel = 3
)

func (c Channel) String() string {
	switch c {
	case ChannelData:
		return "data"
	case ChannelProgress:
		return "progress"
	case ChannelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("channel(%d)", byte(c))
	}
}

// demuxSideband reads sideband-framed pkt-lines until a flush or clean
// EOF, concatenating data-channel payloads. Progress payloads are
// forwarded to onProgress if set; a fatal payload aborts with
// RemoteError. A frame with no channel byte or an unknown channel is a
// protocol violation.
func demuxSideband(pr *pktline.Reader, onProgress func(string)) ([]byte, error) {
	var pack bytes.Buffer
	for {
		line, err := pr.Read()
		if err == io.EOF {
			return pack.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read sideband frame: %w", err)
		}
		if line.Kind == pktline.LineFlush {
			return pack.Bytes(), nil
		}
		if len(line.Payload) == 0 {
			return nil, fmt.Errorf("%w: sideband frame missing channel byte", ErrProtocol)
		}

		ch := Channel(line.Payload[0])
		body := line.Payload[1:]
		switch ch {
		case ChannelData:
			pack.Write(body)
		case ChannelProgress:
			if onProgress != nil {
				onProgress(strings.TrimRight(string(body), "\r\n"))
			}
		case ChannelFatal:
			return nil, &RemoteError{Message: strings.TrimRight(string(body), "\r\n")}
		default:
			return nil, fmt.Errorf("%w: unknown sideband channel %d", ErrProtocol, byte(ch))
		}
	}
}
