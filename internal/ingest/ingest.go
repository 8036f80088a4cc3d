// Package ingest checks uploaded photos before anything is stored or sent to
// the vision model.
package ingest

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
)

const (
	// PublicMaxBytes caps anonymous uploads.
	PublicMaxBytes int64 = 10 << 20
	// DefaultMIMEType is used when nothing else identifies the image.
	DefaultMIMEType = "image/jpeg"
)

// Upload is the raw multipart payload.
type Upload struct {
	Data         []byte
	DeclaredType string
	FileName     string
}

// Image is an upload that decoded successfully.
type Image struct {
	Data     []byte
	MIMEType string
	Format   string
	Width    int
	Height   int
	FileName string

	decoded image.Image
}

// Limits bound the payload sent to the vision model.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Validate rejects non-image declared types, empty or oversized payloads and
// anything that does not fully decode. A corrupt body is rejected whatever
// type the client claimed.
func Validate(in Upload, maxBytes int64) (*Image, error) {
	declared, err := declaredType(in.DeclaredType)
	if err != nil {
		return nil, err
	}
	size := int64(len(in.Data))
	if size == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if maxBytes > 0 && size > maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file exceeds maximum size of %d MB", maxBytes>>20)).
			WithDetails(map[string]any{"max_bytes": maxBytes, "size_bytes": size})
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid image file")
	}
	decoded, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid image file")
	}
	bounds := decoded.Bounds()

	return &Image{
		Data:     in.Data,
		MIMEType: resolveMIME(declared, in.FileName, in.Data),
		Format:   format,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		FileName: in.FileName,
		decoded:  decoded,
	}, nil
}

// PrepareForAnalysis returns the bytes and MIME type to send to the model.
// Images inside the limits pass through unchanged; larger ones are fitted
// into the bounding box and re-encoded as JPEG.
func PrepareForAnalysis(img *Image, limits Limits) ([]byte, string, error) {
	if img == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "image required")
	}
	if !exceeds(img, limits) {
		return img.Data, img.MIMEType, nil
	}
	src := img.decoded
	if src == nil {
		var err error
		src, err = imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid image file")
		}
	}
	quality := limits.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	fitted := imaging.Fit(src, limits.MaxWidth, limits.MaxHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode resized image")
	}
	return buf.Bytes(), "image/jpeg", nil
}

func exceeds(img *Image, limits Limits) bool {
	if limits.MaxWidth <= 0 || limits.MaxHeight <= 0 {
		return false
	}
	return img.Width > limits.MaxWidth || img.Height > limits.MaxHeight
}

// declaredType normalizes the client content type. An empty value is allowed;
// anything outside image/* is rejected.
func declaredType(value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(clean)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "content type invalid")
	}
	mediaType = strings.ToLower(mediaType)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file must be an image")
	}
	return mediaType, nil
}

// resolveMIME prefers the declared type, then the file extension, then the
// sniffed content, and finally falls back to JPEG.
func resolveMIME(declared, fileName string, data []byte) string {
	if declared != "" {
		return declared
	}
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		if byExt := mime.TypeByExtension(ext); strings.HasPrefix(byExt, "image/") {
			mediaType, _, err := mime.ParseMediaType(byExt)
			if err == nil {
				return mediaType
			}
		}
	}
	if sniffed := mimetype.Detect(data); strings.HasPrefix(sniffed.String(), "image/") {
		return sniffed.String()
	}
	return DefaultMIMEType
}
