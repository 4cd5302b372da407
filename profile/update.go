package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/pkg/errors"
)

// Image is a picture to upload with a profile update.
type Image struct {
	Filename    string
	ContentType string // sniffed from the first bytes when empty
	Body        io.Reader
}

// UpdateRequest carries only the fields being changed; nil fields are left
// alone by the backend.
type UpdateRequest struct {
	Name     *string
	Username *string
	Bio      *string
	Email    *string
	Image    *Image
}

func (r UpdateRequest) empty() bool {
	return r.Name == nil && r.Username == nil && r.Bio == nil && r.Email == nil && r.Image == nil
}

// UpdateProfile sends a partial update as a multipart PUT /profile and
// returns the updated profile.
func (c *Client) UpdateProfile(ctx context.Context, req UpdateRequest) (*User, error) {
	if req.empty() {
		return nil, ErrEmptyUpdate
	}
	if _, err := c.bearer(); err != nil {
		return nil, errors.Wrap(err, "[Client.UpdateProfile]")
	}

	body, contentType, err := encodeUpdate(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.UpdateProfile] encode body")
	}
	return c.do(ctx, "UpdateProfile", http.MethodPut, "/profile", body, contentType, true)
}

func encodeUpdate(req UpdateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct {
		name  string
		value *string
	}{
		{"name", req.Name},
		{"username", req.Username},
		{"bio", req.Bio},
		{"email", req.Email},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if err := w.WriteField(f.name, *f.value); err != nil {
			return nil, "", err
		}
	}

	if req.Image != nil {
		if err := writeImage(w, req.Image); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeImage(w *multipart.Writer, img *Image) error {
	if img.Body == nil {
		return errors.New("image has no body")
	}
	data, err := io.ReadAll(img.Body)
	if err != nil {
		return errors.Wrap(err, "read image")
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	filename := filepath.Base(img.Filename)
	if filename == "." || filename == string(filepath.Separator) {
		filename = "profile-image"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profileImage"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}
