package mdrenderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/inkpost/inkpost"
)

var _ inkpost.ContentRenderer = &ExternalRenderer{}

var ErrRenderService = errors.New("render service error")

// ExternalRenderer talks to an inkpost render service through a multipart web request.
// The markdown is sent as the "md" form file, the same way the service expects it.
type ExternalRenderer struct {
	url    string
	client *http.Client
}

// NewExternalRenderer sends requests to url, which is the full address of the
// /render endpoint.
func NewExternalRenderer(url string) *ExternalRenderer {
	return &ExternalRenderer{url: url, client: &http.Client{Timeout: 30 * time.Second}}
}

func (r *ExternalRenderer) RenderContent(ctx context.Context, src *string) (*inkpost.RenderedContent, error) {
	if src == nil || *src == "" {
		return &inkpost.RenderedContent{}, nil
	}

	var body bytes.Buffer
	// since the writer in multipart.Writer is a bytes.Buffer which never errors out at Write(), we can safely ignore all errors
	wr := multipart.NewWriter(&body)
	fw, _ := wr.CreateFormFile("md", "markdown.md")
	io.WriteString(fw, *src)
	wr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", wr.FormDataContentType())
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't reach render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrRenderService, resp.Status, bytes.TrimSpace(msg))
	}

	var out inkpost.RenderedContent
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("couldn't decode render service response: %w", err)
	}
	return &out, nil
}
