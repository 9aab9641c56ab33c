package llmprovider

import (
	"bytes"
	"encoding/base64"
	"io"
)

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

func extensionFor(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	default:
		return ".m4a"
	}
}
