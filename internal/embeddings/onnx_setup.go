package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultONNXRuntimeVersion must match the runtime fastembed-go was built
// against.
const DefaultONNXRuntimeVersion = "1.23.0"

const onnxReleaseBaseURL = "https://github.com/microsoft/onnxruntime/releases/download"

// ErrUnsupportedPlatform is returned when no runtime release exists for the
// host OS and architecture.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var releasePlatforms = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

// Runtime locates and installs the ONNX runtime shared library used by
// the fastembed provider.
type Runtime struct {
	Version string
	Dir     string
	BaseURL string
	Client  *http.Client
	GOOS    string
	GOARCH  string
}

// DefaultRuntime installs into ~/.config/transcriptrag/lib for the host
// platform.
func DefaultRuntime() *Runtime {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Runtime{
		Version: DefaultONNXRuntimeVersion,
		Dir:     filepath.Join(home, ".config", "transcriptrag", "lib"),
		BaseURL: onnxReleaseBaseURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
	}
}

// LibraryPath returns ONNX_PATH when set, else the managed library if it
// exists, else "".
func (r *Runtime) LibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	p := filepath.Join(r.Dir, libraryFile(r.GOOS))
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// Install downloads the release archive and unpacks its lib directory into
// r.Dir. It returns the path of the main library.
func (r *Runtime) Install(ctx context.Context) (string, error) {
	platform, err := releasePlatform(r.GOOS, r.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Dir, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", r.Dir, err)
	}

	url := fmt.Sprintf("%s/v%s/onnxruntime-%s-%s.tgz", strings.TrimRight(r.BaseURL, "/"), r.Version, platform, r.Version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading onnx runtime: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: status %d", url, resp.StatusCode)
	}

	root := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, r.Version)
	lib := libraryFile(r.GOOS)
	if err := unpackLibs(resp.Body, r.Dir, root, lib); err != nil {
		return "", fmt.Errorf("unpacking %s: %w", url, err)
	}
	return filepath.Join(r.Dir, lib), nil
}

func releasePlatform(goos, goarch string) (string, error) {
	if p, ok := releasePlatforms[goos+"/"+goarch]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func libraryFile(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// unpackLibs copies the regular files and symlinks found under root in a
// gzipped tarball into dir, flattened. Symlinks may only point at siblings.
func unpackLibs(src io.Reader, dir, root, lib string) error {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	found := false
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, root) {
			continue
		}
		base := path.Base(name)
		dest := filepath.Join(dir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			if strings.Contains(hdr.Linkname, "/") || hdr.Linkname == ".." {
				return fmt.Errorf("symlink %s escapes the library directory", name)
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return fmt.Errorf("linking %s: %w", base, err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if base == lib || strings.HasPrefix(base, lib+".") {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("library %s not found in archive", lib)
	}
	return nil
}

func writeFile(dest string, src io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".onnx-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(dest), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// RuntimeLibraryPath reports the library DefaultRuntime would load, or "".
func RuntimeLibraryPath() string {
	return DefaultRuntime().LibraryPath()
}

// InstallRuntime downloads the default runtime version.
func InstallRuntime(ctx context.Context) (string, error) {
	return DefaultRuntime().Install(ctx)
}

// setONNXPathEnv points fastembed-go at the runtime library.
var setONNXPathEnv = func(p string) error {
	return os.Setenv("ONNX_PATH", p)
}

// EnsureONNXRuntime returns the runtime library path, installing the
// default version first when none is present.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := DefaultRuntime()
	if p := rt.LibraryPath(); p != "" {
		logger.Debug("onnx runtime present", zap.String("path", p))
		return p, nil
	}

	logger.Info("installing onnx runtime",
		zap.String("version", rt.Version),
		zap.String("platform", rt.GOOS+"/"+rt.GOARCH),
	)
	p, err := rt.Install(ctx)
	if err != nil {
		return "", err
	}
	if err := setONNXPathEnv(p); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	logger.Info("onnx runtime installed", zap.String("path", p))
	return p, nil
}
