package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dverasc/datalens-backend/internal/apierr"
)

// Chunk is one fragment of a streamed upload. Exactly one chunk in the
// sequence carries the file name; every chunk may carry content (possibly
// empty for the name-bearing one).
type Chunk struct {
	FileName string `json:"file_name,omitempty"`
	Content  []byte `json:"content,omitempty"`
}

// ChunkAssembler reassembles an ordered chunk sequence into one logical file
// payload. The HTTP request body delivers chunks in order, so fragments are
// concatenated as they arrive. Nothing is persisted until Finalize succeeds;
// a client disconnect mid-stream just discards the buffer.
type ChunkAssembler struct {
	fileName string
	buf      bytes.Buffer
}

func NewChunkAssembler() *ChunkAssembler {
	return &ChunkAssembler{}
}

func (a *ChunkAssembler) Push(chunk Chunk) {
	if name := strings.TrimSpace(chunk.FileName); name != "" {
		a.fileName = name
	}
	a.buf.Write(chunk.Content)
}

// Finalize validates the assembled upload and returns the declared file name
// plus the concatenated payload. It fails before any storage write when no
// chunk ever supplied a file name.
func (a *ChunkAssembler) Finalize() (string, []byte, error) {
	if a.fileName == "" {
		return "", nil, apierr.Invalid("file_name_required", fmt.Errorf("file name is required"))
	}
	return a.fileName, a.buf.Bytes(), nil
}
