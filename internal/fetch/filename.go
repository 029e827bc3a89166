package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/italolelis/media_analyzer/internal/media"
)

// recognizedExtensions are path extensions trusted enough to reuse the URL's
// basename as the local filename.
var recognizedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".gif": {},
	".mp4": {}, ".mpeg": {}, ".mov": {}, ".avi": {}, ".webm": {},
	".mp3": {}, ".wav": {}, ".ogg": {},
}

// DeriveFilename picks a scratch filename for a download. The URL's path
// basename is used when it carries a recognizable extension; otherwise the
// name is media_<8-hex-of-sha256(url)> with an extension derived from the
// resolved MIME type, which keeps it deterministic per URL and collision
// resistant across URLs. An unparsable URL falls back to a random suffix.
func DeriveFilename(rawURL, mimeType string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "media_" + uuid.NewString()[:8] + extensionFor(mimeType)
	}

	base := path.Base(u.Path)
	if ext := strings.ToLower(path.Ext(base)); ext != "" {
		if _, ok := recognizedExtensions[ext]; ok {
			return base
		}
	}

	sum := sha256.Sum256([]byte(rawURL))

	return "media_" + hex.EncodeToString(sum[:4]) + extensionFor(mimeType)
}

func extensionFor(mimeType string) string {
	switch media.Normalize(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/mpeg":
		return ".mpeg"
	case "video/quicktime":
		return ".mov"
	case "video/x-msvideo":
		return ".avi"
	case "video/webm":
		return ".webm"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
