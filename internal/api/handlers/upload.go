package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/voicenote/whisper-api/internal/storage"
)

// errBadUpload marks malformed multipart requests.
var errBadUpload = errors.New("bad upload")

const maxFieldBytes = 1 << 10

// uploadForm is a parsed POST /transcribe body.
type uploadForm struct {
	File     *storage.TempFile
	Language string
	Engine   string
}

// trackingReader remembers read errors so client faults can be told apart
// from disk faults after storage.Save returns.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// readUpload streams the multipart body. The "file" part goes straight to the
// temp store; "language" and "engine" are read as short text fields. On
// error nothing is left on disk.
func readUpload(r *http.Request, store *storage.TempStore) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart/form-data", errBadUpload)
	}

	form := &uploadForm{}
	fail := func(err error) (*uploadForm, error) {
		if form.File != nil {
			form.File.Remove()
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(clientError(err))
		}

		switch part.FormName() {
		case "file":
			if form.File != nil {
				part.Close()
				return fail(fmt.Errorf("%w: more than one file part", errBadUpload))
			}
			tr := &trackingReader{r: part}
			tmp, err := store.Save(tr, part.FileName())
			part.Close()
			if err != nil {
				if tr.err != nil {
					return fail(clientError(tr.err))
				}
				return fail(err)
			}
			form.File = tmp
		case "language":
			if form.Language, err = readField(part); err != nil {
				return fail(err)
			}
		case "engine":
			if form.Engine, err = readField(part); err != nil {
				return fail(err)
			}
		default:
			// unknown fields are drained and ignored
			if _, err := io.Copy(io.Discard, part); err != nil {
				return fail(clientError(err))
			}
			part.Close()
		}
	}

	if form.File == nil {
		return nil, fmt.Errorf("%w: missing file part", errBadUpload)
	}
	return form, nil
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", clientError(err)
	}
	if len(b) > maxFieldBytes {
		return "", fmt.Errorf("%w: field %q too long", errBadUpload, part.FormName())
	}
	return strings.TrimSpace(string(b)), nil
}

// clientError keeps MaxBytesError intact and turns other read errors into
// errBadUpload.
func clientError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", errBadUpload, err)
}

// uploadStatus maps a readUpload error to an HTTP status and client message.
func uploadStatus(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit)
	case errors.Is(err, storage.ErrEmptyUpload):
		return http.StatusBadRequest, "empty upload"
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "failed to store upload"
	}
}
