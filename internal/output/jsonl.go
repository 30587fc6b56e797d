package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/manifest-network/chainguard/internal/models"
)

type powRecord struct {
	Height               uint64 `json:"height"`
	Timestamp            uint64 `json:"timestamp"`
	CumulativeDifficulty string `json:"cumulative_difficulty"`
}

type headerRecord struct {
	Height       uint64      `json:"height"`
	Hash         models.Hash `json:"hash"`
	PrevID       models.Hash `json:"prev_id"`
	MajorVersion uint8       `json:"major_version"`
	MinorVersion uint8       `json:"minor_version"`
	Timestamp    uint64      `json:"timestamp"`
	Nonce        uint32      `json:"nonce"`
}

// JSONLinesHandler writes one JSON object per line. It is safe for concurrent use.
type JSONLinesHandler struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

func NewJSONLinesHandler(w io.Writer) *JSONLinesHandler {
	return &JSONLinesHandler{enc: json.NewEncoder(w), w: w}
}

func (h *JSONLinesHandler) WriteBlockPOWInfo(ctx context.Context, height uint64, info models.BlockPOWInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enc.Encode(powRecord{
		Height:               height,
		Timestamp:            info.Timestamp,
		CumulativeDifficulty: info.CumulativeDifficulty.Dec(),
	}); err != nil {
		return fmt.Errorf("failed to write pow info for height %d: %w", height, err)
	}
	return nil
}

func (h *JSONLinesHandler) WriteBlockHeader(ctx context.Context, header models.BlockHeader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enc.Encode(headerRecord{
		Height:       header.Height,
		Hash:         header.Hash,
		PrevID:       header.PrevID,
		MajorVersion: header.MajorVersion,
		MinorVersion: header.MinorVersion,
		Timestamp:    header.Timestamp,
		Nonce:        header.Nonce,
	}); err != nil {
		return fmt.Errorf("failed to write header of block %s: %w", header.Hash, err)
	}
	return nil
}

// Close closes the underlying writer when it is an io.Closer.
func (h *JSONLinesHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
