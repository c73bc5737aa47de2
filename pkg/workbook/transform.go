package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/systemstart/receiptflow/pkg/api"
)

type transformData struct {
	Path string
	Dir  string
	Name string
}

// RunTransform runs the configured command over the workbook at path. The
// command and its arguments are templates over .Path, .Dir and .Name.
func (e *Excel) RunTransform(ctx context.Context, path string) error {
	tc := e.cfg.Transform
	if tc.Command == "" {
		return fmt.Errorf("no transform command configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	data := transformData{Path: abs, Dir: filepath.Dir(abs), Name: filepath.Base(abs)}

	name, err := render(tc.Command, data)
	if err != nil {
		return fmt.Errorf("rendering transform command: %w", err)
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("transform command %q not found: %w", name, err)
	}
	args := make([]string, 0, len(tc.Args))
	for i, a := range tc.Args {
		r, err := render(a, data)
		if err != nil {
			return fmt.Errorf("rendering transform argument %d: %w", i, err)
		}
		args = append(args, r)
	}

	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = api.DefaultTransformTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("running transform", "command", name, "path", abs, "timeout", timeout)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = data.Dir
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("transform %s interrupted: %w", name, errors.Join(ctxErr, err))
		}
		return fmt.Errorf("transform %s failed: %w\nstderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	slog.Debug("transform finished", "command", name, "stdout", strings.TrimSpace(stdout.String()))
	return nil
}

func render(text string, data transformData) (string, error) {
	t, err := template.New("transform").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
