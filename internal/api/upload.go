package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/and161185/exam-client/internal/model"
)

// Parse modes accepted by the upload endpoint.
const (
	ParseModeFormat = "format"
	ParseModeAI     = "ai"
)

// Upload is a bank file import.
type Upload struct {
	Filename  string
	Content   io.Reader
	ParseMode string // ParseModeFormat when empty
}

// UploadBankFile imports questions from a file into an existing bank.
func (g *Gateway) UploadBankFile(ctx context.Context, bankID string, up Upload) (*model.UploadResult, error) {
	body, contentType, err := buildUpload(up)
	if err != nil {
		return nil, err
	}
	var out model.UploadResult
	err = g.Do(ctx, "/question-banks/"+url.PathEscape(bankID)+"/upload", &out,
		WithMethod(http.MethodPost), WithMultipart(body, contentType))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func buildUpload(up Upload) (*bytes.Buffer, string, error) {
	if up.Content == nil {
		return nil, "", fmt.Errorf("upload %q: no content", up.Filename)
	}
	data, err := io.ReadAll(up.Content)
	if err != nil {
		return nil, "", fmt.Errorf("read %q: %w", up.Filename, err)
	}
	mode := strings.TrimSpace(up.ParseMode)
	if mode == "" {
		mode = ParseModeFormat
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("parseMode", mode); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(up.Filename))))
	h.Set("Content-Type", mimetype.Detect(data).String())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
