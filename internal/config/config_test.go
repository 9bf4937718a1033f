package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/movieroi/internal/fetch"
)

func TestLoadEffective_DefaultsWithoutConfigFile(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "k")

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigPath != "" {
		t.Fatalf("未找到配置文件时 ConfigPath 应为空，实际 %q", eff.ConfigPath)
	}
	if eff.WindowDays != DefaultWindowDays || eff.Limit != DefaultLimit {
		t.Fatalf("默认值错误：window_days=%d limit=%d", eff.WindowDays, eff.Limit)
	}
	if eff.Source != SourceTMDB || eff.ArtifactKey != DefaultArtifactKey {
		t.Fatalf("默认值错误：source=%q key=%q", eff.Source, eff.ArtifactKey)
	}
	if eff.Sink != filepath.Join(cwd, DefaultSinkDir) {
		t.Fatalf("期望默认 sink 在 cwd 下，实际 %q", eff.Sink)
	}
	if eff.StateDir != filepath.Join(cwd, DefaultStateDir) {
		t.Fatalf("期望默认 state_dir 在 cwd 下，实际 %q", eff.StateDir)
	}
	if eff.Region != DefaultRegion || eff.Language != DefaultLanguage {
		t.Fatalf("默认过滤条件错误：region=%q language=%q", eff.Region, eff.Language)
	}
	if eff.HTTPRetryMax != DefaultHTTPRetryMax || eff.S3.MaxRetries == nil || *eff.S3.MaxRetries != DefaultS3MaxRetries {
		t.Fatalf("默认重试次数错误")
	}
	if eff.APIKey != "k" {
		t.Fatalf("期望读取环境变量中的 key")
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "nope.json"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_InvalidJSON(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"limit":`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_CLIOverridesConfig(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "k")
	writeFile(t, filepath.Join(cwd, "custom.json"), []byte(`{"window_days":30,"limit":50,"sink":"out","source":"tmdb"}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		ConfigPath:    "custom.json",
		WindowDays:    7,
		WindowDaysSet: true,
		Sink:          "s3://bucket/dash",
		Source:        SourceRaw,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigPath != filepath.Join(cwd, "custom.json") {
		t.Fatalf("ConfigPath 错误：%q", eff.ConfigPath)
	}
	if eff.WindowDays != 7 {
		t.Fatalf("期望 CLI window_days=7 覆盖配置，实际 %d", eff.WindowDays)
	}
	if eff.Limit != 50 {
		t.Fatalf("CLI 未指定 limit 时应使用配置值 50，实际 %d", eff.Limit)
	}
	if eff.Sink != "s3://bucket/dash" {
		t.Fatalf("期望 CLI sink 覆盖配置，实际 %q", eff.Sink)
	}
	if eff.Source != SourceRaw {
		t.Fatalf("期望 CLI source 覆盖配置，实际 %q", eff.Source)
	}
}

func TestLoadEffective_RelativeSinkResolvedFromCwd(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "k")
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"sink":"exports/../artifacts","state_dir":"/var/lib/movieroi"}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Sink != filepath.Join(cwd, "artifacts") {
		t.Fatalf("sink 应相对 cwd 解析并 Clean，实际 %q", eff.Sink)
	}
	if eff.StateDir != "/var/lib/movieroi" {
		t.Fatalf("绝对 state_dir 应保持不变，实际 %q", eff.StateDir)
	}
}

func TestLoadEffective_ExplicitZeroLimitIsInvalid(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "k")

	_, err := LoadEffective(cwd, CLIArgs{Limit: 0, LimitSet: true})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("--limit 0 应报 %q，实际 err=%v", ErrCodeInvalid, err)
	}
	_, err = LoadEffective(cwd, CLIArgs{Limit: MaxLimit + 1, LimitSet: true})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("超出上限应报 %q，实际 err=%v", ErrCodeInvalid, err)
	}
	_, err = LoadEffective(cwd, CLIArgs{WindowDays: -1, WindowDaysSet: true})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("window_days<1 应报 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_InvalidFields(t *testing.T) {
	t.Setenv(EnvAPIKey, "k")
	cases := map[string]string{
		"source":       `{"source":"csv"}`,
		"api_base_url": `{"api_base_url":"ftp://x"}`,
		"artifact_key": `{"artifact_key":"../escape.csv"}`,
		"s3 bucket":    `{"sink":"s3:///prefix"}`,
		"rps":          `{"requests_per_second":-1}`,
		"retry":        `{"http_retry_max":-1}`,
	}
	for name, body := range cases {
		cwd := t.TempDir()
		writeFile(t, filepath.Join(cwd, FileName), []byte(body))
		_, err := LoadEffective(cwd, CLIArgs{})
		if Code(err) != ErrCodeInvalid {
			t.Fatalf("%s：期望 %q，实际 err=%v", name, ErrCodeInvalid, err)
		}
	}
}

func TestLoadEffective_ConcurrencyClamped(t *testing.T) {
	t.Setenv(EnvAPIKey, "k")
	for body, want := range map[string]int{
		`{"concurrency":100}`: MaxConcurrency,
		`{"concurrency":-5}`:  1,
		`{}`:                  DefaultConcurrency,
	} {
		cwd := t.TempDir()
		writeFile(t, filepath.Join(cwd, FileName), []byte(body))
		eff, err := LoadEffective(cwd, CLIArgs{})
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if eff.Concurrency != want {
			t.Fatalf("%s：期望 concurrency=%d，实际 %d", body, want, eff.Concurrency)
		}
	}
}

func TestLoadEffective_ConcurrencyMatchesFetchPool(t *testing.T) {
	t.Setenv(EnvAPIKey, "k")
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"concurrency":1000}`))
	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Concurrency != fetch.MaxConcurrency {
		t.Fatalf("concurrency 上限应与抓取池一致：期望 %d，实际 %d", fetch.MaxConcurrency, eff.Concurrency)
	}
	if DefaultConcurrency != fetch.DefaultConcurrency {
		t.Fatalf("默认并发应与抓取池一致：期望 %d，实际 %d", fetch.DefaultConcurrency, DefaultConcurrency)
	}
}

func TestLoadEffective_ExplicitZeroRetryAndEmptyRegion(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "k")
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"http_retry_max":0,"region":""}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.HTTPRetryMax != 0 {
		t.Fatalf("显式 0 不应被默认值覆盖，实际 %d", eff.HTTPRetryMax)
	}
	if eff.Region != "" {
		t.Fatalf("显式空 region 表示不过滤，实际 %q", eff.Region)
	}
}

func TestLoadEffective_MissingCredential(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "")

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingCredential {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingCredential, err, Code(err))
	}

	if _, err := LoadEffective(cwd, CLIArgs{CredentialOptional: true}); err != nil {
		t.Fatalf("CredentialOptional 不应要求凭据：%v", err)
	}

	// source=raw 不访问网络，不要求凭据。
	if _, err := LoadEffective(cwd, CLIArgs{Source: SourceRaw}); err != nil {
		t.Fatalf("source=raw 不应要求凭据：%v", err)
	}
}

func TestLoadEffective_KeyFromDotEnv(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "")
	writeFile(t, filepath.Join(cwd, EnvFileName), []byte("# local\nTMDB_API_KEY=from-dotenv\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.APIKey != "from-dotenv" {
		t.Fatalf("期望从 .env 读取 key，实际 %q", eff.APIKey)
	}
	if os.Getenv(EnvAPIKey) != "" {
		t.Fatalf(".env 不应写入进程环境")
	}
}

func TestLoadEffective_EnvWinsOverDotEnv(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv(EnvAPIKey, "from-env")
	writeFile(t, filepath.Join(cwd, EnvFileName), []byte("TMDB_API_KEY=from-dotenv\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.APIKey != "from-env" {
		t.Fatalf("进程环境应优先，实际 %q", eff.APIKey)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir 失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
}
