package covers

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/gopds/gopds/pkg/errcodes"
)

// PDF and DjVu are never parsed in-process; page rendering and metadata
// extraction go through external tools, and a missing tool degrades the
// format to filename-only metadata instead of failing the scan.

// RenderFirstPage rasterizes page one of a PDF or DjVu file using the
// configured render tool and returns the image bytes. The tool is invoked
// as `tool <input> -f 1 -l 1 <output-prefix>` and is expected to produce
// <output-prefix> with a common image extension appended.
func (st *Store) RenderFirstPage(ctx context.Context, inputPath string) ([]byte, error) {
	tool := st.cfg.Covers.RenderTool
	if tool == "" {
		return nil, errors.WithStack(errcodes.ExternalTool("no render tool configured"))
	}
	if _, err := exec.LookPath(tool); err != nil {
		return nil, errors.WithStack(errcodes.ExternalTool(tool + " not found in PATH"))
	}

	tmpDir, err := os.MkdirTemp("", "gopds-cover-")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer os.RemoveAll(tmpDir)
	prefix := filepath.Join(tmpDir, "page")

	cmd := exec.CommandContext(ctx, tool, inputPath, "-f", "1", "-l", "1", prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.WithStack(errcodes.ExternalTool(tool + ": " + msg))
	}

	// Tools append their own suffix (page-1.ppm, page-01.png, ...); take
	// whatever single file landed next to the prefix.
	matches, err := filepath.Glob(prefix + "*")
	if err != nil || len(matches) == 0 {
		return nil, errors.WithStack(errcodes.ExternalTool(tool + " produced no output"))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// DocumentInfo runs the configured metadata tool and parses its
// `Key: Value` output. Absent tool or empty output yields an empty map.
func (st *Store) DocumentInfo(ctx context.Context, inputPath string) (map[string]string, error) {
	tool := st.cfg.Covers.MetaTool
	if tool == "" {
		return map[string]string{}, nil
	}
	if _, err := exec.LookPath(tool); err != nil {
		return nil, errors.WithStack(errcodes.ExternalTool(tool + " not found in PATH"))
	}

	cmd := exec.CommandContext(ctx, tool, inputPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.WithStack(errcodes.ExternalTool(tool + ": " + err.Error()))
	}
	return parseKeyValues(out), nil
}

func parseKeyValues(out []byte) map[string]string {
	info := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			info[key] = value
		}
	}
	return info
}
