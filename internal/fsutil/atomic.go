package fsutil

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes the output of the supplied writer function to path
// with full durability guarantees: temp file, fsync, atomic rename. The
// target file is either fully written or untouched.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if not committed.
		_ = pending.Cleanup()
	}()

	if err := write(pending); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}

	// CloseAtomicallyReplace: fsync + rename (durable + atomic).
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic marshals v with 2-space indentation and writes it to path
// atomically. This is the serialization every pattern and dataset artifact
// goes through.
func WriteJSONAtomic(path string, v any) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteBytesAtomic writes raw bytes to path atomically.
func WriteBytesAtomic(path string, data []byte) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
