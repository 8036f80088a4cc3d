package validators

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/angelmondragon/platewise-backend/internal/ingest"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
)

const (
	// multipartOverhead leaves room for boundaries and the text fields.
	multipartOverhead = 1 << 20
	maxMemory         = 8 << 20
	maxNoteLength     = 500
)

// ReadUpload pulls the named file part out of a multipart request. Bytes
// past maxBytes are kept (one extra) so ingest.Validate reports the size.
func ReadUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (ingest.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ingest.Upload{}, pkgerrors.New(pkgerrors.CodeValidation, "file exceeds the upload size limit").
				WithDetails(map[string]any{"field": field, "max_bytes": maxBytes})
		}
		return ingest.Upload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "expected multipart/form-data body")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return ingest.Upload{}, pkgerrors.New(pkgerrors.CodeValidation, "file is required").
			WithDetails(map[string]any{"field": field})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return ingest.Upload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read uploaded file")
	}

	return ingest.Upload{
		Data:         data,
		DeclaredType: header.Header.Get("Content-Type"),
		FileName:     header.Filename,
	}, nil
}

// FormNote returns the optional free-text field, cleaned by SanitizeNote.
func FormNote(r *http.Request, field string) string {
	return SanitizeNote(r.FormValue(field))
}

// SanitizeNote trims a user note, drops control characters (newlines become
// spaces) and cuts it to maxNoteLength runes. The note ends up inside the
// model prompt, so it is kept to a single line.
func SanitizeNote(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, input)
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > maxNoteLength {
		cleaned = strings.TrimSpace(string(runes[:maxNoteLength]))
	}
	return cleaned
}
