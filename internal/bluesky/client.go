package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/media"
)

const defaultPDS = "https://bsky.social"

// Client is a minimal BlueSky/AT Protocol XRPC client covering sessions,
// blob uploads and post records.
type Client struct {
	pds        string
	httpClient *http.Client

	// populated after Login
	accessJwt string
	did       string
	handle    string
}

// NewClient creates a new BlueSky API client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds: pds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx XRPC response.
type APIError struct {
	Status int

	// Name and Message come from the XRPC error body when present.
	Name    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: string(body)}
	var xrpcErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &xrpcErr) == nil {
		e.Name = xrpcErr.Error
		e.Message = xrpcErr.Message
	}
	return e
}

// Login authenticates with the PDS and stores the session token. Use an App
// Password, not your account password.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("%w: create session for %s: %w", domain.ErrAuth, identifier, err)
	}
	if resp.AccessJwt == "" || resp.DID == "" {
		return fmt.Errorf("%w: create session for %s: empty session", domain.ErrAuth, identifier)
	}

	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	c.handle = resp.Handle
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// Handle returns the authenticated user's handle. Only valid after Login.
func (c *Client) Handle() string {
	return c.handle
}

// UploadBlob uploads raw image bytes as a blob and returns a reference.
// The blob will be deleted if not referenced in a record within a time window.
// Blobs over media.MaxSize are refused without a request.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType string) (*BlobRef, error) {
	if c.accessJwt == "" {
		return nil, fmt.Errorf("not authenticated: call Login first")
	}
	if err := media.CheckSize(int64(len(data))); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)

	var result uploadBlobResponse
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}

	return &result.Blob, nil
}

// CreateRecord writes record to the given collection of the authenticated
// user's repo via com.atproto.repo.createRecord.
func (c *Client) CreateRecord(ctx context.Context, collection string, record any) (*StrongRef, error) {
	if c.accessJwt == "" {
		return nil, fmt.Errorf("not authenticated: call Login first")
	}

	body := createRecordRequest{
		Repo:       c.did,
		Collection: collection,
		Record:     record,
	}

	var resp StrongRef
	if err := c.post(ctx, "/xrpc/com.atproto.repo.createRecord", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: create record: %w", domain.ErrPublish, err)
	}

	return &resp, nil
}

// Record is a fetched repo record.
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid"`
	Value json.RawMessage `json:"value"`
}

// GetRecord fetches a record via com.atproto.repo.getRecord.
func (c *Client) GetRecord(ctx context.Context, repo, collection, rkey string) (*Record, error) {
	params := url.Values{}
	params.Set("repo", repo)
	params.Set("collection", collection)
	params.Set("rkey", rkey)

	var resp Record
	if err := c.get(ctx, "/xrpc/com.atproto.repo.getRecord", params, &resp); err != nil {
		return nil, fmt.Errorf("get record at://%s/%s/%s: %w", repo, collection, rkey, err)
	}
	if resp.CID == "" {
		return nil, fmt.Errorf("get record at://%s/%s/%s: missing cid", repo, collection, rkey)
	}

	return &resp, nil
}

// ResolveHandle returns the DID for a handle via com.atproto.identity.resolveHandle.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var resp struct {
		DID string `json:"did"`
	}
	if err := c.get(ctx, "/xrpc/com.atproto.identity.resolveHandle", params, &resp); err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	if resp.DID == "" {
		return "", fmt.Errorf("resolve handle %s: empty did", handle)
	}

	return resp.DID, nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pds+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// IsNotFound reports whether err is an XRPC RecordNotFound or HTTP 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound || apiErr.Name == "RecordNotFound"
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type uploadBlobResponse struct {
	Blob BlobRef `json:"blob"`
}
