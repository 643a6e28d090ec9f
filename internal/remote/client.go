// Package remote is the thin client for the remote file store: a
// Drive-shaped REST API exposing file/folder CRUD, metadata patching,
// content upload/download, and paged search queries.
//
// All calls take the bearer token explicitly; the client holds no
// credentials. HTTP 401/403 surface as *AuthError, any other non-2xx
// as *RemoteError. Neither is ever retried here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps metadata response reads. File listings
	// are paged, so responses stay small.
	maxAPIResponseBytes = 4 * 1024 * 1024

	// maxDownloadBytes caps a single content download. Journal records
	// are small text files and attachments are phone-camera images, so
	// 64MB is generous headroom.
	maxDownloadBytes = 64 * 1024 * 1024

	// queryPageSize is the page size requested from the files API.
	queryPageSize = 100

	// queryFields selects the record fields identity resolution and
	// reconciliation need.
	queryFields = "nextPageToken,files(id,name,mimeType,parents,modifiedTime,appProperties)"
)

// Client talks to the remote file-store REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
}

// NewClient creates a file-store client. If httpClient is nil, a
// client with a 30-second timeout is created. uploadURL may equal
// baseURL for providers that do not split the upload endpoint.
func NewClient(baseURL, uploadURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	if uploadURL == "" {
		uploadURL = baseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		uploadURL:  uploadURL,
	}
}

// classifyStatus converts a non-2xx response into the typed error the
// rest of the engine dispatches on. The provider's own message is
// extracted from the JSON error body when present.
func classifyStatus(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").Str
	if msg == "" {
		// Some endpoints return a bare {"error": "..."} shape.
		msg = gjson.GetBytes(body, "error").Str
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Status: status, Message: msg}
	}

	return &RemoteError{Status: status, Message: msg}
}

// do sends one authenticated request and returns the response body.
// maxBytes caps the body read.
func (c *Client) do(ctx context.Context, token, method, rawURL string, body io.Reader, contentType string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// Query runs one page of a files search. Returns the page's records
// and the continuation token; an empty token means the listing is
// exhausted. Callers that need every match must loop (or use QueryAll).
func (c *Client) Query(ctx context.Context, token, expr, pageToken string) ([]RemoteRecord, string, error) {
	params := url.Values{}
	params.Set("q", expr)
	params.Set("fields", queryFields)
	params.Set("pageSize", fmt.Sprint(queryPageSize))

	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	respBody, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/files?"+params.Encode(), nil, "", maxAPIResponseBytes)
	if err != nil {
		return nil, "", fmt.Errorf("querying files: %w", err)
	}

	var list fileListResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, "", fmt.Errorf("decoding file list: %w", err)
	}

	records := make([]RemoteRecord, 0, len(list.Files))
	for _, f := range list.Files {
		records = append(records, f.toRecord())
	}

	return records, list.NextPageToken, nil
}

// QueryAll runs a files search to exhaustion, following continuation
// tokens until the provider reports no further pages.
func (c *Client) QueryAll(ctx context.Context, token, expr string) ([]RemoteRecord, error) {
	var (
		all       []RemoteRecord
		pageToken string
	)

	for {
		records, next, err := c.Query(ctx, token, expr, pageToken)
		if err != nil {
			return nil, err
		}

		all = append(all, records...)

		if next == "" {
			return all, nil
		}

		pageToken = next
	}
}

// GetFile fetches one file's metadata by id. A missing file returns
// (nil, nil): for identity resolution a stale id is a non-match, not a
// failure.
func (c *Client) GetFile(ctx context.Context, token, id string) (*RemoteRecord, error) {
	params := url.Values{}
	params.Set("fields", "id,name,mimeType,parents,modifiedTime,appProperties,trashed")

	respBody, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/files/"+url.PathEscape(id)+"?"+params.Encode(), nil, "", maxAPIResponseBytes)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.Status == http.StatusNotFound {
			return nil, nil
		}

		return nil, fmt.Errorf("fetching file %s: %w", id, err)
	}

	var res struct {
		fileResource
		Trashed bool `json:"trashed"`
	}

	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("decoding file %s: %w", id, err)
	}

	if res.Trashed {
		return nil, nil
	}

	rec := res.toRecord()

	return &rec, nil
}

// CreateFolder creates a folder under the given parent and returns its
// id. An empty parentID creates the folder at the drive root.
func (c *Client) CreateFolder(ctx context.Context, token, name, parentID string) (string, error) {
	meta := FileMeta{Name: name, MimeType: FolderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	id, err := c.CreateFile(ctx, token, meta)
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}

	return id, nil
}

// CreateFile creates a file (metadata only) and returns its id.
// Content is uploaded separately with UpdateContent.
func (c *Client) CreateFile(ctx context.Context, token string, meta FileMeta) (string, error) {
	payload, err := json.Marshal(fileResource{
		Name:          meta.Name,
		MimeType:      meta.MimeType,
		Parents:       meta.Parents,
		AppProperties: meta.Properties,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling file metadata: %w", err)
	}

	respBody, err := c.do(ctx, token, http.MethodPost, c.baseURL+"/files?fields=id", bytes.NewReader(payload), "application/json", maxAPIResponseBytes)
	if err != nil {
		return "", fmt.Errorf("creating file %q: %w", meta.Name, err)
	}

	id := gjson.GetBytes(respBody, "id").Str
	if id == "" {
		return "", fmt.Errorf("create response for %q carried no id", meta.Name)
	}

	return id, nil
}

// UpdateContent replaces the file's content bytes.
func (c *Client) UpdateContent(ctx context.Context, token, id string, data []byte, mimeType string) error {
	rawURL := c.uploadURL + "/files/" + url.PathEscape(id) + "?uploadType=media"

	if _, err := c.do(ctx, token, http.MethodPatch, rawURL, bytes.NewReader(data), mimeType, maxAPIResponseBytes); err != nil {
		return fmt.Errorf("uploading content for %s: %w", id, err)
	}

	return nil
}

// PatchMetadata applies a partial metadata update: rename, parent
// moves, and custom-property changes. A zero patch is a no-op that
// performs no request.
func (c *Client) PatchMetadata(ctx context.Context, token, id string, patch MetaPatch) error {
	if patch.IsZero() {
		return nil
	}

	params := url.Values{}
	if len(patch.AddParents) > 0 {
		params.Set("addParents", strings.Join(patch.AddParents, ","))
	}

	if len(patch.RemoveParents) > 0 {
		params.Set("removeParents", strings.Join(patch.RemoveParents, ","))
	}

	payload, err := json.Marshal(fileResource{
		Name:          patch.Name,
		AppProperties: patch.Properties,
	})
	if err != nil {
		return fmt.Errorf("marshalling metadata patch: %w", err)
	}

	rawURL := c.baseURL + "/files/" + url.PathEscape(id)
	if q := params.Encode(); q != "" {
		rawURL += "?" + q
	}

	if _, err := c.do(ctx, token, http.MethodPatch, rawURL, bytes.NewReader(payload), "application/json", maxAPIResponseBytes); err != nil {
		return fmt.Errorf("patching metadata for %s: %w", id, err)
	}

	return nil
}

// Delete removes a file or folder.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	if _, err := c.do(ctx, token, http.MethodDelete, c.baseURL+"/files/"+url.PathEscape(id), nil, "", maxAPIResponseBytes); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}

	return nil
}

// DownloadBytes fetches the file's content.
func (c *Client) DownloadBytes(ctx context.Context, token, id string) ([]byte, error) {
	rawURL := c.baseURL + "/files/" + url.PathEscape(id) + "?alt=media"

	data, err := c.do(ctx, token, http.MethodGet, rawURL, nil, "", maxDownloadBytes)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", id, err)
	}

	return data, nil
}
