package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// FrameTag is attached to every upload so frames can be purged in bulk.
const FrameTag = "attendance-frame"

// Client stores captured frames in Cloudinary through the signed upload
// endpoint.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	Now       func() time.Time
}

func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Now:       time.Now,
	}
}

// UploadResult is the part of the upload answer the intake needs.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
}

// APIError is a non-2xx answer from Cloudinary.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudinary: upload rejected (%d): %s", e.Status, e.Message)
}

// UploadDataURL uploads a base64 data URL ("data:image/jpeg;base64,...").
func (c *Client) UploadDataURL(ctx context.Context, data string) (*UploadResult, error) {
	return c.upload(ctx, func(w *multipart.Writer) error {
		return w.WriteField("file", data)
	})
}

// UploadBytes uploads an encoded image under filename.
func (c *Client) UploadBytes(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	return c.upload(ctx, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = part.Write(data)
		return err
	})
}

func (c *Client) upload(ctx context.Context, attach func(*multipart.Writer) error) (*UploadResult, error) {
	form := map[string]string{
		"api_key":   c.APIKey,
		"tags":      FrameTag,
		"timestamp": strconv.FormatInt(c.Now().Unix(), 10),
	}
	if c.Folder != "" {
		form["folder"] = c.Folder
	}
	form["signature"] = c.sign(form)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range form {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := attach(mw); err != nil {
		return nil, fmt.Errorf("cloudinary: attach image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/" + c.CloudName + "/image/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: read answer: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, apiError(resp.StatusCode, raw)
	}
	var res UploadResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("cloudinary: decode answer: %w", err)
	}
	return &res, nil
}

func apiError(status int, raw []byte) *APIError {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &APIError{Status: status, Message: msg}
}

// sign is sha1 over the sorted "k=v" pairs joined by '&' plus the secret.
// api_key, file and resource_type are never signed.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "api_key", "file", "resource_type":
			continue
		}
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k + "=" + params[k])
	}
	b.WriteString(c.APISecret)
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
