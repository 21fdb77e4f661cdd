package ttsapitest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mobiletts/internal/domain/segment"
)

func TestWriteStream(t *testing.T) {
	var buf bytes.Buffer
	err := WriteStream(&buf,
		[]segment.Segment{{Text: "Hi.", Start: 0, End: 0.5}},
		[][]byte{[]byte("mp3")})
	require.NoError(t, err)

	assert.Equal(t, "TIMING:{\"text\":\"Hi.\",\"start\":0,\"end\":0.5,\"chunk_index\":0}\nmp3", buf.String())
}

func TestWriteStream_CountMismatch(t *testing.T) {
	err := WriteStream(&bytes.Buffer{}, []segment.Segment{{Text: "a"}}, nil)
	assert.Error(t, err)
}
