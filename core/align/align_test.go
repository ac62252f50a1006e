package align

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// encodeSyncSafe is the inverse of SyncSafeSize.
func encodeSyncSafe(n int) []byte {
	return []byte{
		byte(n>>21) & 0x7F,
		byte(n>>14) & 0x7F,
		byte(n>>7) & 0x7F,
		byte(n) & 0x7F,
	}
}

func id3Block(size int, flags byte) []byte {
	b := []byte("ID3")
	b = append(b, 0x04, 0x00, flags)
	b = append(b, encodeSyncSafe(size)...)
	return append(b, bytes.Repeat([]byte{0xAA}, size)...)
}

func position(t *testing.T, r io.Seeker) int64 {
	t.Helper()
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	return pos
}

func TestSyncSafeSize(t *testing.T) {
	tests := []struct {
		in   []byte
		want int64
	}{
		{[]byte{0, 0, 0, 0}, 0},
		{[]byte{0, 0, 0, 0x7F}, 127},
		{[]byte{0, 0, 1, 0}, 128},
		{[]byte{0x7F, 0x7F, 0x7F, 0x7F}, 1<<28 - 1},
		// high bits are ignored
		{[]byte{0x80, 0x80, 0x81, 0x80}, 128},
	}
	for _, tt := range tests {
		if got := SyncSafeSize(tt.in); got != tt.want {
			t.Errorf("SyncSafeSize(%x) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSkipLeadingTag(t *testing.T) {
	for _, size := range []int{0, 1, 300, 4096} {
		data := append(id3Block(size, 0), []byte("AUDIO...")...)
		r := bytes.NewReader(data)

		if err := SkipLeadingTag(r); err != nil {
			t.Fatalf("size %d: SkipLeadingTag: %v", size, err)
		}
		if got, want := position(t, r), int64(10+size); got != want {
			t.Errorf("size %d: cursor at %d, want %d", size, got, want)
		}
		rest, _ := io.ReadAll(r)
		if string(rest) != "AUDIO..." {
			t.Errorf("size %d: remaining = %q", size, rest)
		}
	}
}

func TestSkipLeadingTagWithFooter(t *testing.T) {
	data := id3Block(20, id3v2FooterFlag)
	data = append(data, bytes.Repeat([]byte{'3', 'D', 'I'}, 4)[:10]...)
	data = append(data, []byte("AUDIO")...)
	r := bytes.NewReader(data)

	if err := SkipLeadingTag(r); err != nil {
		t.Fatalf("SkipLeadingTag: %v", err)
	}
	if got := position(t, r); got != 40 {
		t.Errorf("cursor at %d, want 40", got)
	}
}

func TestSkipLeadingTagWithoutTag(t *testing.T) {
	data := []byte{0xFF, 0xFB, 0x90, 0x64, 1, 2, 3, 4, 5, 6, 7, 8}
	r := bytes.NewReader(data)

	if err := SkipLeadingTag(r); err != nil {
		t.Fatalf("SkipLeadingTag: %v", err)
	}
	if got := position(t, r); got != 0 {
		t.Errorf("cursor at %d, want 0", got)
	}
}

func TestSkipLeadingTagShortRead(t *testing.T) {
	tests := map[string][]byte{
		"short header":  []byte("ID3\x04"),
		"truncated tag": id3Block(100, 0)[:50],
	}
	for name, data := range tests {
		err := SkipLeadingTag(bytes.NewReader(data))
		var sre *ShortReadError
		if !errors.As(err, &sre) {
			t.Errorf("%s: err = %v, want *ShortReadError", name, err)
			continue
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%s: err = %v, want to wrap io.ErrUnexpectedEOF", name, err)
		}
	}
}

func TestFindSyncWord(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int64
	}{
		{"at start", []byte{0xFF, 0xFB, 0x90}, 0},
		{"after padding", []byte{0x00, 0x00, 0xFF, 0xFB, 0x90, 0x44}, 2},
		{"ff without sync bits", []byte{0xFF, 0x10, 0xFF, 0xE2}, 2},
		{"double ff", []byte{0x01, 0xFF, 0xFF, 0xF3}, 1},
	}
	for _, tt := range tests {
		r := bytes.NewReader(tt.data)
		if err := FindSyncWord(r); err != nil {
			t.Fatalf("%s: FindSyncWord: %v", tt.name, err)
		}
		if got := position(t, r); got != tt.want {
			t.Errorf("%s: cursor at %d, want %d", tt.name, got, tt.want)
		}
		next := make([]byte, 1)
		r.Read(next)
		if next[0] != 0xFF {
			t.Errorf("%s: next byte = %#x, want 0xff", tt.name, next[0])
		}
	}
}

type countingReader struct {
	*bytes.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.Reader.Read(p)
}

func TestFindSyncWordAfterLongJunk(t *testing.T) {
	junk := 3*syncScanBuffer + 17
	data := append(bytes.Repeat([]byte{0x42}, junk), 0xFF, 0xFB, 0x90, 0x00)
	data = append(data, bytes.Repeat([]byte{0x00}, syncScanBuffer)...)
	r := &countingReader{Reader: bytes.NewReader(data)}
	r.Seek(5, io.SeekStart)

	if err := FindSyncWord(r); err != nil {
		t.Fatalf("FindSyncWord: %v", err)
	}
	if got, _ := r.Seek(0, io.SeekCurrent); got != int64(junk) {
		t.Errorf("cursor at %d, want %d", got, junk)
	}
	if r.reads > 5 {
		t.Errorf("FindSyncWord issued %d reads, want buffered reads", r.reads)
	}
}

func TestFindSyncWordMissing(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{0x00, 0x01, 0x02},
		{0x00, 0xFF},
		{0xFF, 0x1F, 0xFF, 0xC0},
	} {
		err := FindSyncWord(bytes.NewReader(data))
		var sre *ShortReadError
		if !errors.As(err, &sre) {
			t.Errorf("FindSyncWord(%x) = %v, want *ShortReadError", data, err)
		}
	}
}

func TestAlign(t *testing.T) {
	data := id3Block(32, 0)
	data = append(data, 0x00, 0x00, 0xFF, 0xFB, 0x90)
	off, err := Align(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if off != 10+32+2 {
		t.Errorf("offset = %d, want %d", off, 10+32+2)
	}
}

func TestTrailingTagSize(t *testing.T) {
	audio := bytes.Repeat([]byte{0xFF, 0xFB}, 200)
	tagged := append(append([]byte{}, audio...), append([]byte("TAG"), make([]byte, 125)...)...)

	r := bytes.NewReader(tagged)
	r.Seek(7, io.SeekStart)
	n, err := TrailingTagSize(r, int64(len(tagged)))
	if err != nil {
		t.Fatalf("TrailingTagSize: %v", err)
	}
	if n != 128 {
		t.Errorf("size = %d, want 128", n)
	}
	if got := position(t, r); got != 7 {
		t.Errorf("cursor not restored: at %d, want 7", got)
	}

	n, err = TrailingTagSize(bytes.NewReader(audio), int64(len(audio)))
	if err != nil || n != 0 {
		t.Errorf("untagged: size = %d, err = %v", n, err)
	}

	n, err = TrailingTagSize(bytes.NewReader([]byte("TAG")), 3)
	if err != nil || n != 0 {
		t.Errorf("tiny stream: size = %d, err = %v", n, err)
	}
}
