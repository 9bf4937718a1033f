package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/John-Robertt/movieroi/internal/domain"
	"github.com/John-Robertt/movieroi/internal/fetch"
	"github.com/John-Robertt/movieroi/internal/sink"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingCredential 表示 source=tmdb 但环境与 .env 中都没有 TMDB_API_KEY。
	ErrCodeMissingCredential = domain.ErrCodeMissingCredential
)

const (
	FileName    = "movieroi.json"
	EnvFileName = ".env"
	EnvAPIKey   = "TMDB_API_KEY"

	SourceTMDB = "tmdb"
	SourceRaw  = "raw"
)

const (
	DefaultAPIBaseURL     = "https://api.themoviedb.org/3"
	DefaultImageBaseURL   = "https://image.tmdb.org/t/p/w342"
	DefaultProfileBaseURL = "https://image.tmdb.org/t/p/w185"

	DefaultWindowDays        = 90
	DefaultLimit             = 20
	MaxLimit                 = 10000
	DefaultRegion            = "US"
	DefaultLanguage          = "en"
	DefaultConcurrency       = fetch.DefaultConcurrency
	MaxConcurrency           = fetch.MaxConcurrency
	DefaultRequestsPerSecond = 10
	DefaultHTTPRetryMax      = 2
	DefaultS3MaxRetries      = 3
	DefaultArtifactKey       = "processed_movies.csv"
	DefaultSinkDir           = "data/processed"
	DefaultStateDir          = ".movieroi"
)

// CLIArgs 是 run 子命令暴露的覆盖项，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --limit 0 必须报错，而不是被当作“未指定”。
type CLIArgs struct {
	ConfigPath string

	WindowDays    int
	WindowDaysSet bool

	Limit    int
	LimitSet bool

	Sink string

	Source string

	// CredentialOptional 用于不访问上游的命令（例如 history）：缺少 TMDB_API_KEY 不报错。
	CredentialOptional bool
}

// FileConfig 对应 movieroi.json 的解析结构。指针字段区分“未设置”与零值。
type FileConfig struct {
	APIBaseURL        string       `json:"api_base_url"`
	ImageBaseURL      string       `json:"image_base_url"`
	ProfileBaseURL    string       `json:"profile_base_url"`
	WindowDays        int          `json:"window_days"`
	Limit             int          `json:"limit"`
	Region            *string      `json:"region"`
	Language          *string      `json:"language"`
	IncludeAdult      bool         `json:"include_adult"`
	Concurrency       int          `json:"concurrency"`
	RequestsPerSecond float64      `json:"requests_per_second"`
	HTTPRetryMax      *int         `json:"http_retry_max"`
	Proxy             *ProxyConfig `json:"proxy"`
	Sink              string       `json:"sink"`
	ArtifactKey       string       `json:"artifact_key"`
	S3                *S3Config    `json:"s3"`
	StateDir          string       `json:"state_dir"`
	RawDump           bool         `json:"raw_dump"`
	Source            string       `json:"source"`
	History           bool         `json:"history"`
	ExtendedColumns   bool         `json:"extended_columns"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type S3Config struct {
	Region     string `json:"region"`
	Endpoint   string `json:"endpoint"`
	PathStyle  bool   `json:"path_style"`
	MaxRetries *int   `json:"max_retries"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 为实际读取的配置文件；未找到可选配置时为空。
	ConfigPath string

	APIBaseURL     string
	ImageBaseURL   string
	ProfileBaseURL string
	// APIKey 只来自环境变量或 .env；不得出现在任何输出中。
	APIKey string

	WindowDays   int
	Limit        int
	Region       string
	Language     string
	IncludeAdult bool

	Concurrency       int
	RequestsPerSecond float64
	HTTPRetryMax      int
	ProxyURL          string

	Sink        string
	ArtifactKey string
	S3          S3Config

	StateDir        string
	RawDump         bool
	Source          string
	History         bool
	ExtendedColumns bool
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingCredential:
		return fmt.Sprintf("%s：环境变量与 %s 中都没有 %s", e.Code, EnvFileName, EnvAPIKey)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/movieroi.json（可选，不存在使用全部默认值）
//
// 覆盖优先级（固定）：
// - window_days/limit/sink/source：CLI > config > 默认
// - TMDB_API_KEY：进程环境 > <cwd>/.env
// - 其他字段：仅由 config 控制
//
// 相对路径（sink/state_dir）一律以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			cfgPath = ""
		}
	}

	eff, err := merge(cwdAbs, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}

	key, err := lookupAPIKey(filepath.Join(cwdAbs, EnvFileName))
	if err != nil {
		return EffectiveConfig{}, err
	}
	if key == "" && eff.Source == SourceTMDB && !cli.CredentialOptional {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingCredential, Path: cfgPath}
	}
	eff.APIKey = key
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	windowDays := fc.WindowDays
	if cli.WindowDaysSet {
		windowDays = cli.WindowDays
	} else if windowDays == 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays < 1 {
		return EffectiveConfig{}, invalid("window_days 必须 >= 1：%d", windowDays)
	}

	limit := fc.Limit
	if cli.LimitSet {
		limit = cli.Limit
	} else if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return EffectiveConfig{}, invalid("limit 必须在 [1, %d] 内：%d", MaxLimit, limit)
	}

	source := SourceTMDB
	if s := strings.TrimSpace(cli.Source); s != "" {
		source = s
	} else if s := strings.TrimSpace(fc.Source); s != "" {
		source = s
	}
	if source != SourceTMDB && source != SourceRaw {
		return EffectiveConfig{}, invalid("source 只能是 %s 或 %s，实际是 %q", SourceTMDB, SourceRaw, source)
	}

	// 文档约定：范围 [1, 32]；超出截断。
	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	rps := fc.RequestsPerSecond
	if rps == 0 {
		rps = DefaultRequestsPerSecond
	}
	if rps < 0 {
		return EffectiveConfig{}, invalid("requests_per_second 必须 > 0：%v", rps)
	}

	retryMax := DefaultHTTPRetryMax
	if fc.HTTPRetryMax != nil {
		retryMax = *fc.HTTPRetryMax
	}
	if retryMax < 0 {
		return EffectiveConfig{}, invalid("http_retry_max 必须 >= 0：%d", retryMax)
	}

	apiBase, err := httpURLOrDefault("api_base_url", fc.APIBaseURL, DefaultAPIBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	imageBase, err := httpURLOrDefault("image_base_url", fc.ImageBaseURL, DefaultImageBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	profileBase, err := httpURLOrDefault("profile_base_url", fc.ProfileBaseURL, DefaultProfileBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%w", err)
		}
	}

	target := strings.TrimSpace(cli.Sink)
	if target == "" {
		target = strings.TrimSpace(fc.Sink)
	}
	if target == "" {
		target = filepath.Join(cwdAbs, DefaultSinkDir)
	}
	if !strings.HasPrefix(target, "s3://") {
		target = absCleanFrom(cwdAbs, target)
	} else if u, err := url.Parse(target); err != nil || u.Host == "" {
		return EffectiveConfig{}, invalid("sink 不是合法的 s3://bucket[/prefix]：%q", target)
	}

	key := strings.TrimSpace(fc.ArtifactKey)
	if key == "" {
		key = DefaultArtifactKey
	}
	if err := sink.ValidateKey(key); err != nil {
		return EffectiveConfig{}, invalid("artifact_key 无效：%w", err)
	}

	s3 := S3Config{}
	if fc.S3 != nil {
		s3 = *fc.S3
	}
	if s3.MaxRetries == nil {
		n := DefaultS3MaxRetries
		s3.MaxRetries = &n
	} else if *s3.MaxRetries < 0 {
		return EffectiveConfig{}, invalid("s3.max_retries 必须 >= 0：%d", *s3.MaxRetries)
	}

	stateDir := strings.TrimSpace(fc.StateDir)
	if stateDir == "" {
		stateDir = DefaultStateDir
	}

	region := DefaultRegion
	if fc.Region != nil {
		region = strings.TrimSpace(*fc.Region)
	}
	language := DefaultLanguage
	if fc.Language != nil {
		language = strings.TrimSpace(*fc.Language)
	}

	return EffectiveConfig{
		ConfigPath:        cfgPath,
		APIBaseURL:        apiBase,
		ImageBaseURL:      imageBase,
		ProfileBaseURL:    profileBase,
		WindowDays:        windowDays,
		Limit:             limit,
		Region:            region,
		Language:          language,
		IncludeAdult:      fc.IncludeAdult,
		Concurrency:       concurrency,
		RequestsPerSecond: rps,
		HTTPRetryMax:      retryMax,
		ProxyURL:          proxyURL,
		Sink:              target,
		ArtifactKey:       key,
		S3:                s3,
		StateDir:          absCleanFrom(cwdAbs, stateDir),
		RawDump:           fc.RawDump,
		Source:            source,
		History:           fc.History,
		ExtendedColumns:   fc.ExtendedColumns,
	}, nil
}

func httpURLOrDefault(field, v, def string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%s 无效：%q", field, v)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s 必须是 http/https：%q", field, v)
	}
	return strings.TrimRight(v, "/"), nil
}

// lookupAPIKey 优先读取进程环境；否则读取 envPath（可选）。
// .env 只读入 map，不修改进程环境。
func lookupAPIKey(envPath string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v, nil
	}
	m, err := godotenv.Read(envPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}
	return strings.TrimSpace(m[EnvAPIKey]), nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
