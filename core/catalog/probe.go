package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/gopxl/beep/v2/mp3"
)

// Prober kinds accepted by NewProber.
const (
	ProberAuto    = "auto"
	ProberFFprobe = "ffprobe"
	ProberNative  = "native"
)

// NewProber returns the prober named by kind. "auto" uses ffprobe when it is
// on PATH and the built-in MP3 decoder otherwise.
func NewProber(kind, ffprobePath string) (Prober, error) {
	switch kind {
	case ProberFFprobe:
		return &FFprobe{Path: ffprobePath}, nil
	case ProberNative:
		return MP3Decoder{}, nil
	case ProberAuto, "":
		if _, err := exec.LookPath(ffprobePath); err == nil {
			return &FFprobe{Path: ffprobePath}, nil
		}
		return MP3Decoder{}, nil
	default:
		return nil, fmt.Errorf("unknown prober %q", kind)
	}
}

// bitrateFromSize derives the average bit rate from a file size and duration.
func bitrateFromSize(size int64, d time.Duration) (uint64, error) {
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %v", d)
	}
	return uint64(float64(size) * 8 / d.Seconds()), nil
}

// FFprobe measures files with the ffprobe binary.
type FFprobe struct {
	Path string
}

// Probe runs ffprobe and reads the container duration and bit rate. When
// ffprobe reports no bit rate it is derived from the file size.
func (p *FFprobe) Probe(path string) (uint64, uint64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	}

	cmd := exec.Command(p.Path, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", path, err, stderr.String())
	}

	var probeData struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0, 0, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", path, err)
	}

	return parseFFprobeFormat(path, probeData.Format.Duration, probeData.Format.BitRate)
}

func parseFFprobeFormat(path, durationStr, bitrateStr string) (uint64, uint64, error) {
	if durationStr == "" {
		return 0, 0, fmt.Errorf("duration not found in ffprobe output for %s", path)
	}
	seconds, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse duration string %q for %s: %w", durationStr, path, err)
	}
	d := time.Duration(seconds * float64(time.Second))

	if bitrateStr != "" && bitrateStr != "N/A" {
		if bitrate, err := strconv.ParseUint(bitrateStr, 10, 64); err == nil && bitrate > 0 {
			return uint64(d.Milliseconds()), bitrate, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	bitrate, err := bitrateFromSize(info.Size(), d)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	return uint64(d.Milliseconds()), bitrate, nil
}

// MP3Decoder measures MP3 files by decoding their frame headers in process.
type MP3Decoder struct{}

// Probe counts the samples of the file to get its duration; the bit rate is
// the file size over that duration, as an average over the whole file.
func (MP3Decoder) Probe(path string) (uint64, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, 0, err
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	d := format.SampleRate.D(streamer.Len())
	bitrate, err := bitrateFromSize(info.Size(), d)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	return uint64(d.Milliseconds()), bitrate, nil
}
