package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type jsoncConfig struct {
	RecordingsDir *string              `json:"recordings_dir"`
	ChunkDir      *string              `json:"chunk_dir"`
	Device        *jsoncDevice         `json:"device"`
	DeviceMonitor *jsoncDeviceMonitor  `json:"device_monitor"`
	Strategy      *jsoncStrategy       `json:"strategy"`
	WorkerPool    *jsoncWorkerPool     `json:"worker_pool"`
	Debug         *jsoncDebug          `json:"debug"`
}

type jsoncDevice struct {
	Preferred *string `json:"preferred"`
	Fallback  *string `json:"fallback"`
}

type jsoncDeviceMonitor struct {
	PollIntervalMS *int64 `json:"poll_interval_ms"`
}

type jsoncStrategy struct {
	Kind                   *string `json:"kind"`
	ChunkDurationMS        *int64  `json:"chunk_duration_ms"`
	OverlapMS              *int64  `json:"overlap_ms"`
	MinChunkMS             *int64  `json:"min_chunk_ms"`
	MaxBufferedDurationMS  *int64  `json:"max_buffered_duration_ms"`
	ChunkTimeoutMS         *int64  `json:"chunk_timeout_ms"`
	ClassicMaxDurationMS   *int64  `json:"classic_max_duration_ms"`
	StreamingSampleRate    *uint32 `json:"streaming_sample_rate"`
}

type jsoncWorkerPool struct {
	Size              *int              `json:"size"`
	Transport         *string           `json:"transport"`
	Command           *string           `json:"command"`
	Args              *jsoncStringList  `json:"args"`
	WorkDir           *string           `json:"work_dir"`
	Env               map[string]string `json:"env"`
	Model             *string           `json:"model"`
	LogLevel          *string           `json:"log_level"`
	PushURIs          *jsoncStringList  `json:"push_uris"`
	PullURIs          *jsoncStringList  `json:"pull_uris"`
	ControlURIs       *jsoncStringList  `json:"control_uris"`
	HeartbeatIntervalMS *int64          `json:"heartbeat_interval_ms"`
	ResponseTimeoutMS   *int64          `json:"response_timeout_ms"`
	InitialBackoffMS    *int64          `json:"initial_backoff_ms"`
	MaxBackoffMS        *int64          `json:"max_backoff_ms"`
	MaxRestarts         *int            `json:"max_restarts"`
}

type jsoncDebug struct {
	ChunkDump *bool `json:"chunk_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.RecordingsDir != nil {
		cfg.RecordingsDir = strings.TrimSpace(*payload.RecordingsDir)
	}
	if payload.ChunkDir != nil {
		cfg.ChunkDir = strings.TrimSpace(*payload.ChunkDir)
	}

	if payload.Device != nil {
		if payload.Device.Preferred != nil {
			cfg.Device.Preferred = strings.TrimSpace(*payload.Device.Preferred)
		}
		if payload.Device.Fallback != nil {
			cfg.Device.Fallback = strings.TrimSpace(*payload.Device.Fallback)
		}
	}

	if payload.DeviceMonitor != nil && payload.DeviceMonitor.PollIntervalMS != nil {
		cfg.DeviceMonitor.PollInterval = msDuration(*payload.DeviceMonitor.PollIntervalMS)
	}

	if payload.Strategy != nil {
		s := payload.Strategy
		if s.Kind != nil {
			cfg.Strategy.Kind = strings.TrimSpace(*s.Kind)
		}
		if s.ChunkDurationMS != nil {
			cfg.Strategy.ChunkDuration = msDuration(*s.ChunkDurationMS)
		}
		if s.OverlapMS != nil {
			cfg.Strategy.Overlap = msDuration(*s.OverlapMS)
		}
		if s.MinChunkMS != nil {
			cfg.Strategy.MinChunk = msDuration(*s.MinChunkMS)
		}
		if s.MaxBufferedDurationMS != nil {
			cfg.Strategy.MaxBufferedDuration = msDuration(*s.MaxBufferedDurationMS)
		}
		if s.ChunkTimeoutMS != nil {
			cfg.Strategy.ChunkTimeout = msDuration(*s.ChunkTimeoutMS)
		}
		if s.ClassicMaxDurationMS != nil {
			cfg.Strategy.ClassicMaxDuration = msDuration(*s.ClassicMaxDurationMS)
		}
		if s.StreamingSampleRate != nil {
			cfg.Strategy.StreamingSampleRate = *s.StreamingSampleRate
		}
	}

	if payload.WorkerPool != nil {
		w := payload.WorkerPool
		if w.Size != nil {
			cfg.WorkerPool.Size = *w.Size
		}
		if w.Transport != nil {
			cfg.WorkerPool.Transport = strings.TrimSpace(*w.Transport)
		}
		if w.Command != nil {
			cfg.WorkerPool.Command = strings.TrimSpace(*w.Command)
		}
		if w.Args != nil {
			cfg.WorkerPool.Args = append([]string(nil), (*w.Args)...)
		}
		if w.WorkDir != nil {
			cfg.WorkerPool.WorkDir = strings.TrimSpace(*w.WorkDir)
		}
		if w.Env != nil {
			cfg.WorkerPool.Env = w.Env
		}
		if w.Model != nil {
			cfg.WorkerPool.Model = strings.TrimSpace(*w.Model)
		}
		if w.LogLevel != nil {
			cfg.WorkerPool.LogLevel = strings.TrimSpace(*w.LogLevel)
		}
		if w.PushURIs != nil {
			cfg.WorkerPool.PushURIs = append([]string(nil), (*w.PushURIs)...)
		}
		if w.PullURIs != nil {
			cfg.WorkerPool.PullURIs = append([]string(nil), (*w.PullURIs)...)
		}
		if w.ControlURIs != nil {
			cfg.WorkerPool.ControlURIs = append([]string(nil), (*w.ControlURIs)...)
		}
		if w.HeartbeatIntervalMS != nil {
			cfg.WorkerPool.HeartbeatInterval = msDuration(*w.HeartbeatIntervalMS)
		}
		if w.ResponseTimeoutMS != nil {
			cfg.WorkerPool.ResponseTimeout = msDuration(*w.ResponseTimeoutMS)
		}
		if w.InitialBackoffMS != nil {
			cfg.WorkerPool.InitialBackoff = msDuration(*w.InitialBackoffMS)
		}
		if w.MaxBackoffMS != nil {
			cfg.WorkerPool.MaxBackoff = msDuration(*w.MaxBackoffMS)
		}
		if w.MaxRestarts != nil {
			cfg.WorkerPool.MaxRestarts = *w.MaxRestarts
		}
	}

	if payload.Debug != nil && payload.Debug.ChunkDump != nil {
		cfg.Debug.EnableChunkDump = *payload.Debug.ChunkDump
	}

	return nil
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
