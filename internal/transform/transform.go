// Package transform converts tabular sources to XML and reshapes XML through
// per-resource XSLT 1.0 stylesheets. Nothing here touches persistent state.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

var ErrTransform = errors.New("transform failed")

// Transformer applies a stylesheet to an XML document.
type Transformer interface {
	Transform(ctx context.Context, doc []byte, stylesheet string, params map[string]string) ([]byte, error)
}

// XSLTProc runs the libxslt command line processor. File and network reads
// are left enabled; callers choose which stylesheets and inputs to trust.
type XSLTProc struct {
	// Path of the xsltproc binary; empty means look it up on PATH.
	Path string
}

func NewXSLTProc(path string) *XSLTProc {
	return &XSLTProc{Path: path}
}

// Available reports whether the processor binary can be found.
func (x *XSLTProc) Available() bool {
	_, err := exec.LookPath(x.binary())
	return err == nil
}

func (x *XSLTProc) Transform(ctx context.Context, doc []byte, stylesheet string, params map[string]string) ([]byte, error) {
	if _, err := os.Stat(stylesheet); err != nil {
		return nil, fmt.Errorf("%w: stylesheet: %v", ErrTransform, err)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]string, 0, len(params)*3+2)
	for _, name := range names {
		args = append(args, "--stringparam", name, params[name])
	}
	args = append(args, stylesheet, "-")

	cmd := exec.CommandContext(ctx, x.binary(), args...)
	cmd.Stdin = bytes.NewReader(doc)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrTransform, filepath.Base(stylesheet), msg)
	}
	return stdout.Bytes(), nil
}

func (x *XSLTProc) binary() string {
	if x.Path == "" {
		return "xsltproc"
	}
	return x.Path
}

// Identity returns documents unchanged.
type Identity struct{}

func (Identity) Transform(_ context.Context, doc []byte, _ string, _ map[string]string) ([]byte, error) {
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

// StylesheetPath resolves <root>/<module>/<name>.xsl. name is normally the
// resource name; variants such as item_ifrc_standard live beside it.
func StylesheetPath(root, module, name string) string {
	return filepath.Join(root, module, name+".xsl")
}
