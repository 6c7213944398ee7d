package signal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/sigclaw/internal/config"
)

// downloadAttachments fetches inbound attachments from the daemon and
// returns local file paths. An attachment exceeding the size cap, or one
// that fails to download, is logged and skipped; the rest of the event is
// still processed.
func (c *Channel) downloadAttachments(ctx context.Context, atts []Attachment) []string {
	if len(atts) == 0 {
		return nil
	}

	dir := config.ExpandHome(c.cfg.MediaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("cannot create media dir, skipping attachments", "dir", dir, "error", err)
		return nil
	}

	var paths []string
	for _, a := range atts {
		if a.ID == "" {
			continue
		}
		if c.cfg.MediaMaxBytes > 0 && a.Size > c.cfg.MediaMaxBytes {
			slog.Warn("attachment exceeds size cap, skipping", "id", a.ID, "size", a.Size, "cap", c.cfg.MediaMaxBytes)
			continue
		}
		path, err := c.fetchAttachment(ctx, a, dir)
		if err != nil {
			slog.Warn("attachment download failed, skipping", "id", a.ID, "error", err)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func (c *Channel) fetchAttachment(ctx context.Context, a Attachment, dir string) (string, error) {
	url := strings.TrimRight(c.cfg.HTTPURL, "/") + "/v1/attachments/" + a.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build attachment request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
	}

	path := filepath.Join(dir, sanitizeFilename(a.ID)+extensionFor(a))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	// The declared size is advisory; enforce the cap on actual bytes too.
	limit := c.cfg.MediaMaxBytes
	if limit <= 0 {
		limit = 20 * 1024 * 1024
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if n > limit {
		os.Remove(path)
		return "", fmt.Errorf("attachment exceeds size cap (%d bytes)", limit)
	}
	return path, nil
}

// sanitizeFilename keeps attachment ids safe as path components.
func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func extensionFor(a Attachment) string {
	if ext := filepath.Ext(a.Filename); ext != "" {
		return ext
	}
	switch a.ContentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/aac", "audio/mp4":
		return ".m4a"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}
