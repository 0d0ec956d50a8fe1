package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

// UploadRequest describes one multipart media upload.
type UploadRequest struct {
	Path           string
	Name           string
	ContentType    string
	SourceLanguage string
	TargetLanguage string
	Translate      bool

	// OnProgress receives the fraction of file bytes written so far, 0 to 1.
	OnProgress func(fraction float64)
}

func (r UploadRequest) fields() [][2]string {
	return [][2]string{
		{"source_language", r.SourceLanguage},
		{"target_language", r.TargetLanguage},
		{"translate", strconv.FormatBool(r.Translate)},
	}
}

// UploadFile streams a local media file to the backend and returns the job id.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (string, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat upload: %w", err)
	}

	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	counter := &countingReader{r: file, total: info.Size(), onProgress: req.OnProgress}

	go func() {
		pw.CloseWithError(writeUploadForm(form, req, name, counter))
	}()

	resp, err := c.do(ctx, http.MethodPost, "/subtitle/upload", pr, form.FormDataContentType())
	if err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	defer resp.Body.Close()

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.JobID, nil
}

// writeUploadForm writes form fields first and the file part last.
func writeUploadForm(form *multipart.Writer, req UploadRequest, name string, body io.Reader) error {
	for _, field := range req.fields() {
		if field[1] == "" {
			continue
		}
		if err := form.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return form.Close()
}

// countingReader reports read progress against a known total.
type countingReader struct {
	r          io.Reader
	total      int64
	read       atomic.Int64
	onProgress func(float64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.onProgress != nil {
		done := c.read.Add(int64(n))
		fraction := 1.0
		if c.total > 0 {
			fraction = float64(done) / float64(c.total)
		}
		if fraction > 1 {
			fraction = 1
		}
		c.onProgress(fraction)
	}
	return n, err
}
