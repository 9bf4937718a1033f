package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/movieroi/internal/domain"
)

func TestFS_StoreOverwritesKey(t *testing.T) {
	root := t.TempDir()
	s := FS{Root: root}

	require.NoError(t, s.Store(context.Background(), "processed_movies.csv", []byte("v1")))
	require.NoError(t, s.Store(context.Background(), "processed_movies.csv", []byte("v2")))

	b, err := os.ReadFile(filepath.Join(root, "processed_movies.csv"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(b))
}

func TestFS_StoreCreatesNestedDirs(t *testing.T) {
	root := t.TempDir()
	s := FS{Root: root}

	require.NoError(t, s.Store(context.Background(), "daily/latest.csv", []byte("x")))
	b, err := os.ReadFile(filepath.Join(root, "daily", "latest.csv"))
	require.NoError(t, err)
	require.Equal(t, "x", string(b))
	require.Equal(t, filepath.Join(root, "daily", "latest.csv"), s.Location("daily/latest.csv"))
}

func TestFS_StoreFailureKeepsPriorArtifact(t *testing.T) {
	root := t.TempDir()
	s := FS{Root: root}
	require.NoError(t, s.Store(context.Background(), "a.csv", []byte("old")))

	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	// 目标目录不可写：临时文件创建失败，旧产物不变。
	require.NoError(t, os.Chmod(root, 0o500))
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

	err := s.Store(context.Background(), "a.csv", []byte("new"))
	require.Error(t, err)
	require.Equal(t, domain.ErrCodeStorage, domain.Code(err))

	b, rerr := os.ReadFile(filepath.Join(root, "a.csv"))
	require.NoError(t, rerr)
	require.Equal(t, "old", string(b))
}

func TestFS_StoreCanceledKeepsPriorArtifact(t *testing.T) {
	root := t.TempDir()
	s := FS{Root: root}
	require.NoError(t, s.Store(context.Background(), "a.csv", []byte("old")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Store(ctx, "a.csv", []byte("new"))
	require.Equal(t, domain.ErrCodeStorage, domain.Code(err))

	b, rerr := os.ReadFile(filepath.Join(root, "a.csv"))
	require.NoError(t, rerr)
	require.Equal(t, "old", string(b))

	ents, rerr := os.ReadDir(root)
	require.NoError(t, rerr)
	require.Len(t, ents, 1, "不应残留临时文件")
}

func TestFS_StoreRejectsDirectoryTarget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a.csv"), 0o755))

	err := FS{Root: root}.Store(context.Background(), "a.csv", []byte("x"))
	require.Equal(t, domain.ErrCodeStorage, domain.Code(err))
}

func TestValidateKey(t *testing.T) {
	require.NoError(t, ValidateKey("processed_movies.csv"))
	require.NoError(t, ValidateKey("a/b.csv"))
	for _, k := range []string{"", "/abs.csv", "../x.csv", "a//b", "a/./b", `a\b`, "a/"} {
		require.Error(t, ValidateKey(k), k)
	}
}

func TestOpen_SelectsImplementation(t *testing.T) {
	s, err := Open("/tmp/out", S3Options{})
	require.NoError(t, err)
	require.IsType(t, FS{}, s)

	s, err = Open("s3://bucket/reports/daily/", S3Options{Credentials: credentials.NewStaticCredentials("a", "b", "")})
	require.NoError(t, err)
	s3s, ok := s.(*S3)
	require.True(t, ok)
	require.Equal(t, "bucket", s3s.Bucket)
	require.Equal(t, "reports/daily", s3s.Prefix)
	require.Equal(t, "s3://bucket/reports/daily/x.csv", s.Location("x.csv"))

	_, err = Open("s3:///nobucket", S3Options{})
	require.Error(t, err)
	_, err = Open("  ", S3Options{})
	require.Error(t, err)
}

type putRecorder struct {
	mu     sync.Mutex
	status int
	method string
	path   string
	ctype  string
	body   []byte
}

func (p *putRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.method, p.path, p.ctype, p.body = r.Method, r.URL.Path, r.Header.Get("Content-Type"), b
	status := p.status
	p.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
}

func newTestS3(t *testing.T, rec *putRecorder, prefix string) *S3 {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	s, err := NewS3("movies", prefix, S3Options{
		Region:      "us-east-1",
		Endpoint:    srv.URL,
		PathStyle:   true,
		MaxRetries:  0,
		ContentType: "text/csv; charset=utf-8",
		Credentials: credentials.NewStaticCredentials("AKID", "SECRET", ""),
	})
	require.NoError(t, err)
	return s
}

func TestS3_StorePutsObject(t *testing.T) {
	rec := &putRecorder{}
	s := newTestS3(t, rec, "dash")

	require.NoError(t, s.Store(context.Background(), "processed_movies.csv", []byte("id,title\n")))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, http.MethodPut, rec.method)
	require.Equal(t, "/movies/dash/processed_movies.csv", rec.path)
	require.Equal(t, "text/csv; charset=utf-8", rec.ctype)
	require.Equal(t, "id,title\n", string(rec.body))
}

func TestS3_StoreFailureIsStorageError(t *testing.T) {
	rec := &putRecorder{status: http.StatusForbidden}
	s := newTestS3(t, rec, "")

	err := s.Store(context.Background(), "processed_movies.csv", []byte("x"))
	require.Error(t, err)
	require.Equal(t, domain.ErrCodeStorage, domain.Code(err))
	require.Contains(t, err.Error(), "s3://movies/processed_movies.csv")
}
