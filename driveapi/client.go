// Package driveapi wraps the remote drive's HTTP/JSON API: authenticated
// requests, chunked upload sessions, and the few operations the mirror core
// depends on (child enumeration, path lookup, folder creation, deletion).
package driveapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PieroV/mirror-to-onedrive/catalog"
	"github.com/rs/zerolog/log"
)

// DriveURL is the API endpoint of the remote drive. Tests within this
// package may reassign it to point at a local httptest server.
var DriveURL = "https://graph.microsoft.com/v1.0"

// Client is an authenticated HTTP/JSON session over the remote drive API.
// The zero value is not usable; construct with NewClient.
type Client struct {
	auth       *Auth
	httpClient *http.Client
}

// NewClient builds a Client around an already-authenticated Auth. Each
// service cycle is expected to build a fresh Client (forcing a token
// refresh).
func NewClient(auth *Auth) *Client {
	return &Client{
		auth: auth,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Dial: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).Dial,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	}
}

type driveError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// request performs an authenticated request against the drive API,
// refreshing the token first if it has expired. Statuses of 400 and above
// are translated to RemoteFailure (or Throttled for 429); a 401 is returned
// as a RemoteFailure like any other, without a forced refresh or a retry.
func (c *Client) request(method, resource string, body io.Reader) ([]byte, error) {
	c.auth.Refresh()

	req, err := http.NewRequest(method, DriveURL+resource, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "bearer "+c.auth.AccessToken)
	switch method {
	case http.MethodPatch, http.MethodPost:
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Throttled{RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &RemoteFailure{Status: resp.StatusCode, Body: string(respBody)}
	}
	if resp.StatusCode >= 400 {
		var derr driveError
		json.Unmarshal(respBody, &derr)
		log.Error().
			Int("status", resp.StatusCode).
			Str("code", derr.Error.Code).
			Str("message", derr.Error.Message).
			Str("resource", resource).
			Msg("Remote request failed.")
		return nil, &RemoteFailure{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func retryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func idPath(id string) string {
	if id == "" || id == "root" {
		return "/me/drive/root"
	}
	return "/me/drive/items/" + url.PathEscape(id)
}

func resourcePath(path string) string {
	if path == "" || path == "/" {
		return "/me/drive/root"
	}
	return "/me/drive/root:/" + escapePathSegments(strings.TrimPrefix(path, "/"))
}

func childrenPathID(id string) string {
	return fmt.Sprintf("/me/drive/items/%s/children", url.PathEscape(idOrRoot(id)))
}

func idOrRoot(id string) string {
	if id == "" {
		return "root"
	}
	return id
}

// wire types - only the fields the core actually consumes.

type wireFolder struct {
	ChildCount uint32 `json:"childCount,omitempty"`
}

type wireHashes struct {
	QuickXorHash string `json:"quickXorHash,omitempty"`
}

type wireFile struct {
	Hashes wireHashes `json:"hashes,omitempty"`
}

type wireParent struct {
	ID string `json:"id,omitempty"`
}

// wireFileSystemInfo carries mtime only, not ctime; the remote API accepts
// both but the upload session has never needed to send ctime.
type wireFileSystemInfo struct {
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime,omitempty"`
}

type wireItem struct {
	ID               string              `json:"id,omitempty"`
	Name             string              `json:"name,omitempty"`
	Size             uint64              `json:"size,omitempty"`
	FileSystemInfo   wireFileSystemInfo  `json:"fileSystemInfo,omitempty"`
	Parent           *wireParent         `json:"parentReference,omitempty"`
	Folder           *wireFolder         `json:"folder,omitempty"`
	File             *wireFile           `json:"file,omitempty"`
	ConflictBehavior string              `json:"@microsoft.graph.conflictBehavior,omitempty"`
}

func (w *wireItem) toItem(parentID string) catalog.Item {
	item := catalog.Item{
		RemoteID: w.ID,
		Name:     w.Name,
		Existing: true,
		ParentID: parentID,
	}
	if w.Parent != nil && parentID == "" {
		item.ParentID = w.Parent.ID
	}
	if w.Folder != nil {
		item.IsFolder = true
		return item
	}
	item.Size = w.Size
	item.MTime = w.FileSystemInfo.LastModifiedDateTime
	if w.File != nil {
		item.ContentHash = w.File.Hashes.QuickXorHash
	}
	return item
}

type childrenPage struct {
	Value    []*wireItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ListChildren enumerates the direct children of a remote folder, following
// pagination until exhausted. On HTTP 429 returns a *Throttled error. On any
// other non-success status, returns the partial list gathered so far plus
// the error - callers must treat that as "unknown", not "empty".
func (c *Client) ListChildren(parentID string) ([]catalog.Item, error) {
	var items []catalog.Item
	next := childrenPathID(parentID)
	for next != "" {
		body, err := c.request(http.MethodGet, next, nil)
		if err != nil {
			return items, err
		}
		var page childrenPage
		if err := json.Unmarshal(body, &page); err != nil {
			return items, err
		}
		for _, w := range page.Value {
			items = append(items, w.toItem(parentID))
		}
		next = strings.TrimPrefix(page.NextLink, DriveURL)
	}
	return items, nil
}

// GetByPath resolves a remote path (slash-separated from the drive root) to
// an item, or nil if it could not be resolved.
func (c *Client) GetByPath(path string) (*catalog.Item, error) {
	body, err := c.request(http.MethodGet, resourcePath(path), nil)
	if err != nil {
		return nil, err
	}
	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, err
	}
	item := w.toItem("")
	return &item, nil
}

// CreateFolder creates a folder under parentID. On server-side name
// conflict the remote assigns a renamed suffix, which is accepted and
// reflected in the returned item's Name. On 429 it sleeps the advised
// interval and retries - a recreate after rename is an accepted idempotent
// outcome.
func (c *Client) CreateFolder(parentID, name string) (*catalog.Item, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"name":   name,
		"folder": map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "rename",
	})
	body, err := c.request(http.MethodPost, childrenPathID(parentID), strings.NewReader(string(payload)))
	if err != nil {
		var throttled *Throttled
		if ok := asThrottled(err, &throttled); ok {
			time.Sleep(throttled.RetryAfter)
			return c.CreateFolder(parentID, name)
		}
		return nil, err
	}
	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, err
	}
	item := w.toItem(parentID)
	return &item, nil
}

// Delete removes a remote item by id. HTTP 404 is treated as success
// (already gone). 429 sleeps and retries.
func (c *Client) Delete(remoteID string) (bool, error) {
	_, err := c.request(http.MethodDelete, "/me/drive/items/"+url.PathEscape(remoteID), nil)
	if err == nil {
		return true, nil
	}
	var failure *RemoteFailure
	if asRemoteFailure(err, &failure) && failure.Status == http.StatusNotFound {
		return true, nil
	}
	var throttled *Throttled
	if asThrottled(err, &throttled) {
		time.Sleep(throttled.RetryAfter)
		return c.Delete(remoteID)
	}
	return false, err
}

// Ping is an opaque liveness probe invoked once at cycle startup, purely to
// raise auth errors early and nudge a token refresh.
func (c *Client) Ping() error {
	_, err := c.request(http.MethodGet, "/me/drive", nil)
	return err
}

func asThrottled(err error, out **Throttled) bool {
	t, ok := err.(*Throttled)
	if ok {
		*out = t
	}
	return ok
}

func asRemoteFailure(err error, out **RemoteFailure) bool {
	r, ok := err.(*RemoteFailure)
	if ok {
		*out = r
	}
	return ok
}
