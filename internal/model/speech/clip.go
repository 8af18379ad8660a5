package speech

// Clip 是一段可播放或可识别的音频数据。
type Clip struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // mp3, wav, webm...
}

// ContentType returns the MIME type used when serving the clip.
func (c Clip) ContentType() string {
	switch c.Format {
	case "":
		return "application/octet-stream"
	case "mp3":
		return "audio/mpeg"
	default:
		return "audio/" + c.Format
	}
}
