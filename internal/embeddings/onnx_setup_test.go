package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleasePlatform(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"linux", "amd64", "linux-x64", false},
		{"linux", "arm64", "linux-aarch64", false},
		{"darwin", "amd64", "osx-x86_64", false},
		{"darwin", "arm64", "osx-arm64", false},
		{"windows", "amd64", "", true},
		{"linux", "riscv64", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := releasePlatform(tt.goos, tt.goarch)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedPlatform)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLibraryFile(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", libraryFile("linux"))
	assert.Equal(t, "libonnxruntime.dylib", libraryFile("darwin"))
}

type tarEntry struct {
	name     string
	body     string
	linkname string
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		switch {
		case e.linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.linkname
			hdr.Size = 0
		case strings.HasSuffix(e.name, "/"):
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestUnpackLibs(t *testing.T) {
	lib := "libonnxruntime.so"
	prefix := "onnxruntime-linux-x64-1.23.0/"
	archive := buildTarGz(t, []tarEntry{
		{name: prefix},
		{name: prefix + "README.md", body: "readme"},
		{name: prefix + "lib/"},
		{name: "./" + prefix + "lib/" + lib + ".1.23.0", body: "binary"},
		{name: prefix + "lib/" + lib, linkname: lib + ".1.23.0"},
	})

	dest := t.TempDir()
	require.NoError(t, unpackLibs(bytes.NewReader(archive), dest, prefix+"lib/", lib))

	content, err := os.ReadFile(filepath.Join(dest, lib+".1.23.0"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(content))

	target, err := os.Readlink(filepath.Join(dest, lib))
	require.NoError(t, err)
	assert.Equal(t, lib+".1.23.0", target)

	_, err = os.Stat(filepath.Join(dest, "README.md"))
	assert.True(t, os.IsNotExist(err), "files outside lib/ are skipped")
}

func TestUnpackLibs_Rejects(t *testing.T) {
	root := "onnxruntime-linux-x64-1.23.0/lib/"
	tests := []struct {
		name    string
		entries []tarEntry
		wantErr string
	}{
		{"missing library", []tarEntry{{name: root + "libother.so", body: "x"}}, "not found in archive"},
		{"escaping symlink", []tarEntry{{name: root + "libonnxruntime.so", linkname: "../../etc/passwd"}}, "escapes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := unpackLibs(bytes.NewReader(buildTarGz(t, tt.entries)), t.TempDir(), root, "libonnxruntime.so")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRuntime_Install(t *testing.T) {
	archive := buildTarGz(t, []tarEntry{
		{name: "onnxruntime-osx-arm64-9.9.9/lib/libonnxruntime.dylib", body: "lib"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v9.9.9/onnxruntime-osx-arm64-9.9.9.tgz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	rt := &Runtime{
		Version: "9.9.9",
		Dir:     filepath.Join(t.TempDir(), "lib"),
		BaseURL: srv.URL,
		GOOS:    "darwin",
		GOARCH:  "arm64",
	}
	p, err := rt.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rt.Dir, "libonnxruntime.dylib"), p)

	t.Setenv("ONNX_PATH", "")
	assert.Equal(t, p, rt.LibraryPath())

	rt.Version = "0.0.1"
	_, err = rt.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	rt.GOOS = "plan9"
	_, err = rt.Install(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestRuntime_LibraryPath(t *testing.T) {
	rt := &Runtime{Dir: t.TempDir(), GOOS: "linux"}

	t.Setenv("ONNX_PATH", "")
	assert.Empty(t, rt.LibraryPath())

	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", rt.LibraryPath())
}

func TestEnsureONNXRuntime_UsesEnvOverride(t *testing.T) {
	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")

	p, err := EnsureONNXRuntime(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", p)
	assert.Equal(t, p, RuntimeLibraryPath())
}
