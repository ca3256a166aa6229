package driveapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/PieroV/mirror-to-onedrive/catalog"
)

// uploadChunkSize is the remote's recommended chunk size: 10 MiB, a
// multiple of the 320 KiB alignment the API requires.
const uploadChunkSize = 10 * 1024 * 1024

type uploadSessionPost struct {
	Name             string             `json:"name,omitempty"`
	ConflictBehavior string             `json:"@microsoft.graph.conflictBehavior,omitempty"`
	FileSystemInfo   wireFileSystemInfo `json:"fileSystemInfo"`
}

type uploadSessionResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// Upload performs a resumable chunked upload of localPath.
//
//   - Zero-length files are rejected: returns (nil, nil), which callers
//     treat as a skip, not an error.
//   - If targetIsID, target is the remote_id of the existing item to
//     overwrite; otherwise target is "parentPath/name" addressing a new
//     item to create under parentID.
//   - The file is streamed in fixed uploadChunkSize chunks, each announced
//     with a "bytes a-b/total" Content-Range header.
//   - Any chunk response outside 200/201/202 aborts the upload and returns
//     (nil, error).
func (c *Client) Upload(localPath, target, parentID string, targetIsID bool) (*catalog.Item, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", localPath, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", localPath, err)
	}
	defer file.Close()

	sessionPath := sessionCreatePath(target, targetIsID)
	payload, _ := json.Marshal(uploadSessionPost{
		Name:             baseNameIfCreate(target, targetIsID),
		ConflictBehavior: conflictBehaviorIfCreate(targetIsID),
		FileSystemInfo: wireFileSystemInfo{
			LastModifiedDateTime: info.ModTime().UTC(),
		},
	})

	sessionBody, err := c.request(http.MethodPost, sessionPath, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("could not create upload session: %w", err)
	}

	var session uploadSessionResponse
	if err := json.Unmarshal(sessionBody, &session); err != nil {
		return nil, fmt.Errorf("could not parse upload session response: %w", err)
	}

	total := info.Size()
	var offset int64
	var lastRespBody []byte
	buf := make([]byte, uploadChunkSize)
	for offset < total {
		n, err := io.ReadFull(file, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("could not read chunk at offset %d: %w", offset, err)
		}
		end := offset + int64(n)

		req, _ := http.NewRequest(http.MethodPut, session.UploadURL, strings.NewReader(string(buf[:n])))
		req.Header.Set("Content-Length", strconv.Itoa(n))
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, total))

		chunkResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("chunk upload failed at offset %d: %w", offset, err)
		}
		lastRespBody, _ = io.ReadAll(chunkResp.Body)
		chunkResp.Body.Close()
		status := chunkResp.StatusCode
		if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
			return nil, &RemoteFailure{Status: status, Body: string(lastRespBody)}
		}
		offset = end
	}

	var w wireItem
	if err := json.Unmarshal(lastRespBody, &w); err != nil || w.ID == "" {
		// the API frequently returns a 0-byte body for the final chunk of a
		// completed multipart upload; fall back to a path lookup.
		lookedUp, lookupErr := c.lookupUploaded(target, targetIsID, parentID)
		if lookupErr != nil {
			return nil, fmt.Errorf("could not determine uploaded item: %w", lookupErr)
		}
		lookedUp.LocalPath = localPath
		return lookedUp, nil
	}

	item := w.toItem(parentID)
	item.LocalPath = localPath
	return &item, nil
}

func (c *Client) lookupUploaded(target string, targetIsID bool, parentID string) (*catalog.Item, error) {
	if targetIsID {
		body, err := c.request(http.MethodGet, idPath(target), nil)
		if err != nil {
			return nil, err
		}
		var w wireItem
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, err
		}
		item := w.toItem(parentID)
		return &item, nil
	}
	item, err := c.GetByPath(target)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func sessionCreatePath(target string, targetIsID bool) string {
	if targetIsID {
		return fmt.Sprintf("/me/drive/items/%s/createUploadSession", url.PathEscape(target))
	}
	return fmt.Sprintf("/me/drive/root:/%s:/createUploadSession", escapePathSegments(target))
}

func baseNameIfCreate(target string, targetIsID bool) string {
	if targetIsID {
		return ""
	}
	parts := strings.Split(target, "/")
	return parts[len(parts)-1]
}

func conflictBehaviorIfCreate(targetIsID bool) string {
	if targetIsID {
		return ""
	}
	return "rename"
}

func escapePathSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
