// Package align positions an MP3 read cursor on the first audio frame.
//
// Files usually start with an ID3v2 block and may end with a 128 byte ID3v1
// block. Neither may reach a listener: a decoder that sees the tag believes
// the stream has the tagged file's length and stops when it runs out.
package align

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	id3v2HeaderSize = 10
	id3v2FooterSize = 10
	id3v1TagSize    = 128

	id3v2FooterFlag = 0x10
	syncSafeMask    = 0x7F

	syncScanBuffer = 4096
)

var (
	id3v2Magic = []byte("ID3")
	id3v1Magic = []byte("TAG")
)

// ShortReadError reports that the stream ended before the aligner found what
// it was looking for.
type ShortReadError struct {
	Op  string // "leading tag" or "sync word"
	Err error
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read while looking for %s: %v", e.Op, e.Err)
}

func (e *ShortReadError) Unwrap() error { return e.Err }

// SyncSafeSize decodes a 4 byte, 7 bits per byte big-endian size.
func SyncSafeSize(b []byte) int64 {
	return int64(b[0]&syncSafeMask)<<21 |
		int64(b[1]&syncSafeMask)<<14 |
		int64(b[2]&syncSafeMask)<<7 |
		int64(b[3]&syncSafeMask)
}

// SkipLeadingTag consumes an ID3v2 block at the start of r. When r does not
// start with a tag the cursor is moved back to where it started.
func SkipLeadingTag(r io.ReadSeeker) error {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locate stream start: %w", err)
	}

	header := make([]byte, id3v2HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return &ShortReadError{Op: "leading tag", Err: err}
	}

	if string(header[:3]) != string(id3v2Magic) {
		if _, err := r.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("rewind after tag probe: %w", err)
		}
		return nil
	}

	size := SyncSafeSize(header[6:10])
	if header[5]&id3v2FooterFlag != 0 {
		size += id3v2FooterSize
	}

	// Read rather than seek so a truncated tag is reported instead of
	// leaving the cursor past the end of the file.
	n, err := io.CopyN(io.Discard, r, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &ShortReadError{Op: "leading tag", Err: fmt.Errorf("tag declares %d bytes, got %d: %w", size, n, err)}
	}
	return nil
}

// FindSyncWord advances r to the next 11-bit frame sync pattern: 0xFF
// followed by a byte with its top three bits set. On success the sync bytes
// are the next bytes read from r.
func FindSyncWord(r io.ReadSeeker) error {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locate sync search start: %w", err)
	}

	// the buffer reads ahead, so the match is located by offset and r is
	// seeked back to it
	br := bufio.NewReaderSize(r, syncScanBuffer)
	var off int64
	prevFF := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return &ShortReadError{Op: "sync word", Err: err}
		}
		off++

		if prevFF && b&0xE0 == 0xE0 {
			if _, err := r.Seek(start+off-2, io.SeekStart); err != nil {
				return fmt.Errorf("rewind to sync word: %w", err)
			}
			return nil
		}
		prevFF = b == 0xFF
	}
}

// Align skips a leading tag and finds the first frame. It returns the
// offset of the first audio byte.
func Align(r io.ReadSeeker) (int64, error) {
	if err := SkipLeadingTag(r); err != nil {
		return 0, err
	}
	if err := FindSyncWord(r); err != nil {
		return 0, err
	}
	return r.Seek(0, io.SeekCurrent)
}

// TrailingTagSize returns the size of an ID3v1 block at the end of a stream
// of the given size, or 0 when there is none. The cursor is restored.
func TrailingTagSize(r io.ReadSeeker, size int64) (int64, error) {
	if size < id3v1TagSize {
		return 0, nil
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(size-id3v1TagSize, io.SeekStart); err != nil {
		return 0, err
	}
	magic := make([]byte, len(id3v1Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, err
	}
	if string(magic) == string(id3v1Magic) {
		return id3v1TagSize, nil
	}
	return 0, nil
}
