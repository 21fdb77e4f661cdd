package ttsapi

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

// timingMarker prefixes the JSON timing line that precedes each MP3 chunk.
var timingMarker = []byte("TIMING:")

var (
	// ErrEmptyStream is returned when the server produced no audio.
	ErrEmptyStream = errors.New("stream contained no audio")
	// ErrMalformedStream is returned when the body does not follow the timing/audio framing.
	ErrMalformedStream = errors.New("malformed audio stream")
)

// DecodeStream reads a speech stream body.
//
// The body is a sequence of chunks, each a line "TIMING:{json}\n" followed by
// that chunk's MP3 bytes, which run until the next marker or end of body.
// Chunk audio is concatenated in order.
func DecodeStream(r io.Reader) (audio.Clip, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return audio.Clip{}, errors.Wrap(err, "failed to read stream")
	}
	if len(body) == 0 {
		return audio.Clip{}, ErrEmptyStream
	}

	var (
		clip audio.Clip
		pos  int
	)
	clip.Segments = []segment.Segment{}

	for pos < len(body) {
		rest := body[pos:]
		if !bytes.HasPrefix(rest, timingMarker) {
			return audio.Clip{}, errors.Wrapf(ErrMalformedStream, "expected timing marker at offset %d", pos)
		}

		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return audio.Clip{}, errors.Wrapf(ErrMalformedStream, "unterminated timing line at offset %d", pos)
		}

		var seg segment.Segment
		if err := json.Unmarshal(rest[len(timingMarker):nl], &seg); err != nil {
			return audio.Clip{}, errors.Wrapf(ErrMalformedStream, "invalid timing at offset %d: %v", pos, err)
		}

		chunk := rest[nl+1:]
		if next := bytes.Index(chunk, timingMarker); next >= 0 {
			chunk = chunk[:next]
		}

		clip.Segments = append(clip.Segments, seg)
		clip.Data = append(clip.Data, chunk...)
		pos += nl + 1 + len(chunk)
	}

	if clip.Empty() {
		return audio.Clip{}, ErrEmptyStream
	}
	return clip, nil
}
