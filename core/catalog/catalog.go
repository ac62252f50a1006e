// Package catalog builds the list of playable tracks from a music directory.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"wadio/logger"
	"wadio/model"

	"github.com/samber/lo"
)

// AudioExtensions lists the file extensions considered during a scan. The
// stream is served as audio/mpeg, so only MPEG audio is picked up.
var AudioExtensions = []string{".mp3"}

// ErrNotDir is wrapped in a ScanError when the library root is a file.
var ErrNotDir = errors.New("not a directory")

// ScanError reports that the library directory could not be read.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Metadata is the textual part of a track as read from its tags.
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	HasCover bool
}

// TagReader reads tag metadata from an audio file.
type TagReader interface {
	ReadTags(path string) (Metadata, error)
}

// Prober measures the duration (ms) and average bit rate (bits/s) of an audio file.
type Prober interface {
	Probe(path string) (lengthMs uint64, bitrate uint64, err error)
}

// Source produces a full catalog for a root directory.
type Source interface {
	Scan(root string) ([]model.Track, error)
}

// Scanner walks a directory tree and turns every readable audio file into a Track.
type Scanner struct {
	Tags  TagReader
	Probe Prober
}

// NewScanner creates a Scanner from a tag reader and a prober.
func NewScanner(tags TagReader, probe Prober) *Scanner {
	return &Scanner{Tags: tags, Probe: probe}
}

// IsAudioFile reports whether path has one of the AudioExtensions.
func IsAudioFile(path string) bool {
	return lo.Contains(AudioExtensions, strings.ToLower(filepath.Ext(path)))
}

// Scan walks root recursively. Files whose tags or timing cannot be read are
// left out; a directory that cannot be read fails the whole scan.
func (s *Scanner) Scan(root string) ([]model.Track, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ScanError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Path: root, Err: ErrNotDir}
	}

	var tracks []model.Track
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &ScanError{Path: path, Err: err}
		}
		if d.IsDir() || !d.Type().IsRegular() || !IsAudioFile(path) {
			return nil
		}

		track, err := s.load(path)
		if err != nil {
			logger.Debug("skipping file", logger.String("path", path), logger.ErrorField(err))
			return nil
		}
		tracks = append(tracks, track)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tracks, nil
}

func (s *Scanner) load(path string) (model.Track, error) {
	meta, err := s.Tags.ReadTags(path)
	if err != nil {
		return model.Track{}, fmt.Errorf("read tags: %w", err)
	}

	length, bitrate, err := s.Probe.Probe(path)
	if err != nil {
		return model.Track{}, fmt.Errorf("probe: %w", err)
	}

	return model.Track{
		Path:     path,
		Title:    meta.Title,
		Artist:   meta.Artist,
		Album:    meta.Album,
		Length:   length,
		Bitrate:  bitrate,
		HasCover: meta.HasCover,
	}, nil
}
