// Package classify maps remote items to folder, video, or other.
package classify

import "strings"

// Class is the closed classification of a remote item.
type Class int

const (
	Other Class = iota
	Folder
	Video
)

func (c Class) String() string {
	switch c {
	case Folder:
		return "folder"
	case Video:
		return "video"
	default:
		return "other"
	}
}

// FolderMimeType is the provider's folder sentinel MIME type.
const FolderMimeType = "application/vnd.google-apps.folder"

// videoMimeTypes is the fixed set of recognized video containers.
var videoMimeTypes = map[string]bool{
	"video/mp4":        true,
	"video/mpeg":       true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"video/webm":       true,
	"video/MP2T":       true,
	"video/mp2t":       true,
}

// videoExtensions is the fixed set of recognized filename suffixes.
var videoExtensions = []string{
	".mp4",
	".avi",
	".mov",
	".mkv",
	".webm",
	".ts",
	".m3u8",
}

// ByMime reports the classification for a MIME type and name.
// An item is a Folder iff its MIME type equals the folder sentinel.
// An item is a Video if its MIME type is a recognized video container
// OR its lowercased name ends in a recognized video extension.
func ByMime(mimeType, name string) Class {
	if mimeType == FolderMimeType {
		return Folder
	}
	if videoMimeTypes[mimeType] {
		return Video
	}
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return Video
		}
	}
	return Other
}

// IsVideo reports whether the MIME type and name classify as a video.
func IsVideo(mimeType, name string) bool {
	return ByMime(mimeType, name) == Video
}

// IsFolder reports whether the MIME type is the folder sentinel.
func IsFolder(mimeType string) bool {
	return mimeType == FolderMimeType
}
