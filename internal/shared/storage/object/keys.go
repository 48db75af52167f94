package object

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"jobfit-backend/internal/shared/util"
)

// NewKey lays keys out as <hashed owner>/<random>_<sanitized name>.
func NewKey(ownerID, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return path.Join(util.OwnerKey(ownerID), uuid.NewString()+"_"+name), nil
}

// OwnedBy reports whether key was issued by NewKey for ownerID.
func OwnedBy(key, ownerID string) bool {
	return strings.HasPrefix(key, util.OwnerKey(ownerID)+"/") && !strings.Contains(key, "..")
}

// Sniff reads up to 512 bytes to detect the content type and returns a reader
// that replays them.
func Sniff(r io.Reader) (string, io.Reader, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	return http.DetectContentType(head[:n]), io.MultiReader(bytes.NewReader(head[:n]), r), nil
}
