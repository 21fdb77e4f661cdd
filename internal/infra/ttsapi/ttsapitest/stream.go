// Package ttsapitest provides helpers for testing against a fake TTS server.
package ttsapitest

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/osa030/mobiletts/internal/domain/segment"
)

// WriteStream writes a speech stream body the way the server frames it: each
// segment as a "TIMING:{json}\n" line followed by its chunk of audio.
// chunks[i] is the audio belonging to segments[i].
func WriteStream(w io.Writer, segments []segment.Segment, chunks [][]byte) error {
	if len(segments) != len(chunks) {
		return errors.Newf("segment/chunk count mismatch: %d != %d", len(segments), len(chunks))
	}
	for i, seg := range segments {
		line, err := json.Marshal(seg)
		if err != nil {
			return errors.Wrap(err, "failed to encode timing")
		}
		if _, err := io.WriteString(w, "TIMING:"); err != nil {
			return errors.Wrap(err, "failed to write stream")
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return errors.Wrap(err, "failed to write stream")
		}
		if _, err := w.Write(chunks[i]); err != nil {
			return errors.Wrap(err, "failed to write stream")
		}
	}
	return nil
}
