package model

// Track represents a playable audio file in the music library.
// It is a value type; queue, history and API responses each hold their own copy.
type Track struct {
	Path     string `json:"-"`        // Path to the audio file, not exposed in API directly
	Title    string `json:"name"`     // Title tag, "unknown" when absent
	Artist   string `json:"artist"`   // Artist tag, "unknown" when absent
	Album    string `json:"album"`    // Album tag, "unknown" when absent
	Length   uint64 `json:"length"`   // Duration in milliseconds
	Bitrate  uint64 `json:"-"`        // Average bit rate in bits per second
	HasCover bool   `json:"hasCover"` // Whether the file carries embedded cover art
}

// DisplayName returns "artist - title" for log output.
func (t Track) DisplayName() string {
	return t.Artist + " - " + t.Title
}
