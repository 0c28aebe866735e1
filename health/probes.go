package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sys/unix"
)

// DiskSpaceProbe reports unhealthy when the filesystem holding path has
// fewer than minFreeBytes available.
func DiskSpaceProbe(path string, minFreeBytes uint64) ProbeFunc {
	return func(context.Context) (bool, string) {
		var stat unix.Statfs_t
		if err := unix.Statfs(path, &stat); err != nil {
			return false, fmt.Sprintf("cannot stat %s: %v", path, err)
		}
		free := uint64(stat.Bavail) * uint64(stat.Bsize)
		if free < minFreeBytes {
			return false, fmt.Sprintf("%d bytes free under %s, need %d", free, path, minFreeBytes)
		}
		return true, fmt.Sprintf("%d bytes free under %s", free, path)
	}
}

// WritableDirProbe verifies the directory accepts writes by creating and
// removing a probe file.
func WritableDirProbe(dir string) ProbeFunc {
	return func(context.Context) (bool, string) {
		probe := filepath.Join(dir, ".health_probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return false, fmt.Sprintf("%s is not writable: %v", dir, err)
		}
		_ = os.Remove(probe)
		return true, fmt.Sprintf("%s is writable", dir)
	}
}

// HTTPProbe reports healthy when the URL answers 2xx within the timeout.
// Useful for the upstream scraping and AI services the backend depends on.
func HTTPProbe(url string, timeout time.Duration) ProbeFunc {
	client := resty.New().SetTimeout(timeout)
	return func(ctx context.Context) (bool, string) {
		resp, err := client.R().SetContext(ctx).Get(url)
		if err != nil {
			return false, fmt.Sprintf("%s unreachable: %v", url, err)
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return false, fmt.Sprintf("%s answered %d", url, resp.StatusCode())
		}
		return true, fmt.Sprintf("%s answered %d", url, resp.StatusCode())
	}
}
