package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// MaxExportSize bounds a downloaded export archive
const MaxExportSize = 100 << 20

// ExportStatus is the lifecycle state of one export task
type ExportStatus string

const (
	ExportRunning ExportStatus = "running"
	ExportSuccess ExportStatus = "success"
	ExportFailed  ExportStatus = "failed"
)

// ExportTask is one poll answer for an export task
type ExportTask struct {
	Status  ExportStatus
	FileURL string
	Msg     string
}

// CreateExportTask starts a server-side export of a legacy document to docx
func (c *Client) CreateExportTask(ctx context.Context, token string, cred AccessCredential) (string, error) {
	var result struct {
		TaskID string `json:"task_id"`
		Ticket string `json:"ticket"`
	}

	body := map[string]string{
		"file_token":     token,
		"type":           "docx",
		"file_extension": "docx",
	}
	if err := c.call(ctx, "create export task", http.MethodPost, "/drive/v1/export_tasks", cred, body, &result); err != nil {
		return "", err
	}

	taskID := result.TaskID
	if taskID == "" {
		taskID = result.Ticket
	}
	if taskID == "" {
		return "", &RemoteFetchError{Operation: "create export task", Msg: "answer carries no task id"}
	}
	return taskID, nil
}

// GetExportTask polls an export task once
func (c *Client) GetExportTask(ctx context.Context, taskID string, cred AccessCredential) (ExportTask, error) {
	var result struct {
		Status string `json:"status"`
		Result struct {
			FileURL   string `json:"file_url"`
			FileToken string `json:"file_token"`
			JobStatus *int   `json:"job_status"`
			JobError  string `json:"job_error_msg"`
		} `json:"result"`
	}

	path := "/drive/v1/export_tasks/" + url.PathEscape(taskID)
	if err := c.call(ctx, "get export task", http.MethodGet, path, cred, nil, &result); err != nil {
		return ExportTask{}, err
	}

	task := ExportTask{
		Status:  parseExportStatus(result.Status, result.Result.JobStatus),
		FileURL: result.Result.FileURL,
		Msg:     result.Result.JobError,
	}
	if task.FileURL == "" && result.Result.FileToken != "" {
		task.FileURL = fmt.Sprintf("%s/drive/v1/export_tasks/file/%s/download", c.baseURL, url.PathEscape(result.Result.FileToken))
	}
	return task, nil
}

// parseExportStatus accepts both the textual status and the numeric job_status dialects
func parseExportStatus(status string, jobStatus *int) ExportStatus {
	switch strings.ToLower(status) {
	case "success", "succeeded", "done":
		return ExportSuccess
	case "failed", "fail", "error":
		return ExportFailed
	case "":
	default:
		return ExportRunning
	}

	if jobStatus == nil {
		return ExportRunning
	}
	switch *jobStatus {
	case 0:
		return ExportSuccess
	case 1, 2:
		return ExportRunning
	default:
		return ExportFailed
	}
}

// DownloadExport fetches the export archive
func (c *Client) DownloadExport(ctx context.Context, fileURL string, cred AccessCredential) ([]byte, error) {
	// Signed URLs outside the API root must not receive the bearer token
	if !strings.HasPrefix(fileURL, c.baseURL+"/") {
		cred = ""
	}
	download, err := c.Fetch(ctx, fileURL, cred, MaxExportSize)
	if err != nil {
		return nil, err
	}
	return download.Body, nil
}

// LegacyDocument is the answer of the direct content dialect
type LegacyDocument struct {
	Title   string
	Content json.RawMessage
}

// LegacyContent reads a legacy document through the direct content API
func (c *Client) LegacyContent(ctx context.Context, token string, cred AccessCredential) (*LegacyDocument, error) {
	var result struct {
		Title   string          `json:"title"`
		Content json.RawMessage `json:"content"`
	}

	path := fmt.Sprintf("/doc/v2/docs/%s/content", url.PathEscape(token))
	if err := c.call(ctx, "get legacy content", http.MethodGet, path, cred, nil, &result); err != nil {
		return nil, err
	}

	return &LegacyDocument{
		Title:   result.Title,
		Content: result.Content,
	}, nil
}
