package chat

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedarden/stickycheese/pkg/models"
)

// maxImageSize bounds attachments read from disk.
const maxImageSize = 20 * 1024 * 1024

// LoadImage reads an image file into an attachment. The media type comes from
// the file content, falling back to the extension.
func LoadImage(path string) (models.ImageAttachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.ImageAttachment{}, err
	}
	if info.Size() > maxImageSize {
		return models.ImageAttachment{}, fmt.Errorf("image %s is larger than %d MB", path, maxImageSize/(1024*1024))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageAttachment{}, err
	}

	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	if !strings.HasPrefix(mediaType, "image/") {
		return models.ImageAttachment{}, fmt.Errorf("%s is not an image", path)
	}

	return models.ImageAttachment{
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
		Name:      filepath.Base(path),
	}, nil
}
