package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

const unknown = "unknown"

// ErrNoCover is returned by Cover when a file has no embedded picture.
var ErrNoCover = errors.New("no embedded cover art")

// FileTagReader reads ID3/MP4/FLAC/OGG tags from disk.
type FileTagReader struct{}

// ReadTags returns the title, artist and album of the file at path.
// A file without any tag is an error; missing fields become "unknown".
func (FileTagReader) ReadTags(path string) (Metadata, error) {
	m, err := readMetadata(path)
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{
		Title:    orUnknown(m.Title()),
		Artist:   orUnknown(m.Artist()),
		Album:    orUnknown(m.Album()),
		HasCover: m.Picture() != nil,
	}, nil
}

// Cover returns the MIME type and bytes of the first embedded picture.
func (FileTagReader) Cover(path string) (string, []byte, error) {
	m, err := readMetadata(path)
	if err != nil {
		return "", nil, err
	}

	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return "", nil, ErrNoCover
	}

	mime := pic.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return mime, pic.Data, nil
}

func readMetadata(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags of %s: %w", path, err)
	}
	return m, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
