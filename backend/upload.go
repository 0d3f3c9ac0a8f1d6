package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"nutribot/model"
)

// UploadResult is the body of a successful POST /upload-pdf
type UploadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Preview  string `json:"preview"`
}

// Grounding converts the result into a grounding context
func (r UploadResult) Grounding() model.GroundingContext {
	return model.GroundingContext{
		SourceName:  r.Filename,
		FullText:    r.Text,
		PreviewText: r.Preview,
	}
}

// ValidateDocumentName rejects anything but .pdf files before a request is made
func ValidateDocumentName(name string) error {
	if !strings.HasSuffix(name, ".pdf") {
		return &model.ValidationError{Reason: "Please upload PDF files only."}
	}
	return nil
}

// UploadPDFFile validates and uploads the file at path
func (c *Client) UploadPDFFile(ctx context.Context, path string) (*UploadResult, error) {
	name := filepath.Base(path)
	if err := ValidateDocumentName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open document")
	}
	defer f.Close()

	return c.UploadPDF(ctx, name, f)
}

// UploadPDF sends a document as the multipart field "file"
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if err := ValidateDocumentName(filename); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, errors.Wrap(err, "read document")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "finish multipart body")
	}

	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(uploadPath), &buf)
	if err != nil {
		return nil, &model.TransportError{Op: "upload", Err: errors.Wrap(err, "build request")}
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Debug().Str("filename", filename).Int("bytes", buf.Len()).Msg("uploading document")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &model.TransportError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.TransportError{
			Op:         "upload",
			StatusCode: resp.StatusCode,
			Err:        errors.New(readErrorBody(resp)),
		}
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &model.TransportError{Op: "upload", Err: errors.Wrap(err, "decode response")}
	}
	if !result.Success {
		return nil, &model.TransportError{Op: "upload", Err: errors.New("backend did not accept the document")}
	}
	if result.Filename == "" {
		result.Filename = filename
	}

	return &result, nil
}
