package legacy

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// maxEntrySize bounds the decompressed size of one archive entry
const maxEntrySize = 100 << 20

// ArchiveError is returned when an export archive cannot be unpacked
type ArchiveError struct {
	Reason string
	Err    error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("export archive: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("export archive: %s", e.Reason)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// export runs the export job state machine and converts its result
func (p *Pipeline) export(ctx context.Context, token string, cred feishu.AccessCredential) (string, error) {
	taskID, err := p.platform.CreateExportTask(ctx, token, cred)
	if err != nil {
		return "", err
	}

	fileURL, err := p.awaitExport(ctx, taskID, cred)
	if err != nil {
		return "", err
	}

	archive, err := p.platform.DownloadExport(ctx, fileURL, cred)
	if err != nil {
		return "", err
	}

	docx, err := extractDocx(archive)
	if err != nil {
		return "", err
	}

	html, err := p.converter.DocxToHTML(docx)
	if err != nil {
		return "", err
	}

	return Reduce(html)
}

// awaitExport polls the task at a fixed interval until it leaves the running state.
// It performs at most pollAttempts polls, never sleeps after the last one and gives up
// once exportTimeout has elapsed, even in the middle of a poll.
func (p *Pipeline) awaitExport(ctx context.Context, taskID string, cred feishu.AccessCredential) (string, error) {
	started := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, p.exportTimeout)
	defer cancel()

	expired := func(attempts int, err error) error {
		if ctx.Err() != nil || pollCtx.Err() == nil {
			return err
		}
		return &feishu.ExportTimeoutError{TaskID: taskID, Attempts: attempts, Elapsed: time.Since(started)}
	}

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		task, err := p.platform.GetExportTask(pollCtx, taskID, cred)
		if err != nil {
			return "", expired(attempt, err)
		}

		switch task.Status {
		case feishu.ExportSuccess:
			if task.FileURL == "" {
				return "", &feishu.ExportFailedError{TaskID: taskID, Status: string(task.Status), Msg: "no download url"}
			}
			p.logger.DebugContext(ctx, "export finished", "task_id", taskID, "polls", attempt)
			return task.FileURL, nil
		case feishu.ExportFailed:
			return "", &feishu.ExportFailedError{TaskID: taskID, Status: string(task.Status), Msg: task.Msg}
		}

		if attempt < p.pollAttempts {
			if err := wait(pollCtx, p.pollInterval); err != nil {
				return "", expired(attempt, err)
			}
		}
	}

	return "", &feishu.ExportTimeoutError{TaskID: taskID, Attempts: p.pollAttempts}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// extractDocx returns the single office document inside an export archive.
// An archive that is itself a docx package is returned unchanged.
func extractDocx(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, &ArchiveError{Reason: "not a zip archive", Err: err}
	}

	var candidates []*zip.File
	for _, f := range zr.File {
		if f.Name == docxMainPart {
			return archive, nil
		}
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), ".docx") {
			candidates = append(candidates, f)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, &ArchiveError{Reason: "no .docx file in archive"}
	case 1:
		return readEntry(candidates[0])
	default:
		return nil, &ArchiveError{Reason: fmt.Sprintf("%d .docx files in archive, expected one", len(candidates))}
	}
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, &ArchiveError{Reason: "open " + f.Name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, &ArchiveError{Reason: "read " + f.Name, Err: err}
	}
	if len(data) > maxEntrySize {
		return nil, &ArchiveError{Reason: fmt.Sprintf("%s exceeds %d bytes", f.Name, maxEntrySize)}
	}
	return data, nil
}
