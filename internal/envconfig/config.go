// Package envconfig reads onnxrun settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/onnxrun/internal/logutil"
)

// Host returns the address the server listens on.
// Configurable via ONNXRUN_HOST. Default: http://127.0.0.1:8737
func Host() *url.URL {
	defaultPort := "8737"

	s := strings.TrimSpace(Var("ONNXRUN_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// LogLevel returns the log level.
// Configurable via ONNXRUN_DEBUG: 0/false = INFO, 1/true = DEBUG, 2 = TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ONNXRUN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// LogFormat returns the log handler format, "text" or "json".
func LogFormat() logutil.Format {
	if strings.EqualFold(Var("ONNXRUN_LOG_FORMAT"), "json") {
		return logutil.JSON
	}
	return logutil.Text
}

var (
	// Strict rejects models that read values nothing produces.
	Strict = Bool("ONNXRUN_STRICT")

	// MaxSessions bounds concurrent sessions per model. 0 means GOMAXPROCS.
	MaxSessions = Uint("ONNXRUN_MAX_SESSIONS", 0)

	// S3Endpoint is the host:port of the object store serving s3:// models.
	S3Endpoint = String("ONNXRUN_S3_ENDPOINT")
	// S3AccessKey and S3SecretKey are static credentials for S3Endpoint.
	S3AccessKey = String("ONNXRUN_S3_ACCESS_KEY")
	S3SecretKey = String("ONNXRUN_S3_SECRET_KEY")
	// S3Region is optional.
	S3Region = String("ONNXRUN_S3_REGION")
	// S3Insecure talks plain HTTP to S3Endpoint.
	S3Insecure = Bool("ONNXRUN_S3_INSECURE")
)

// BoolWithDefault returns a reader for a boolean variable. Unparseable
// non-empty values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a reader for a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a reader for an unsigned variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar describes one environment variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ONNXRUN_DEBUG":         {"ONNXRUN_DEBUG", LogLevel(), "Show additional debug information (e.g. ONNXRUN_DEBUG=1)"},
		"ONNXRUN_LOG_FORMAT":    {"ONNXRUN_LOG_FORMAT", LogFormat(), "Log output format, text or json (default: text)"},
		"ONNXRUN_HOST":          {"ONNXRUN_HOST", Host(), "IP address for the onnxrun server (default 127.0.0.1:8737)"},
		"ONNXRUN_STRICT":        {"ONNXRUN_STRICT", Strict(), "Reject models that read undefined values"},
		"ONNXRUN_MAX_SESSIONS":  {"ONNXRUN_MAX_SESSIONS", MaxSessions(), "Maximum concurrent sessions per model (default: GOMAXPROCS)"},
		"ONNXRUN_S3_ENDPOINT":   {"ONNXRUN_S3_ENDPOINT", S3Endpoint(), "Object store endpoint for s3:// models"},
		"ONNXRUN_S3_ACCESS_KEY": {"ONNXRUN_S3_ACCESS_KEY", redact(S3AccessKey()), "Object store access key"},
		"ONNXRUN_S3_SECRET_KEY": {"ONNXRUN_S3_SECRET_KEY", redact(S3SecretKey()), "Object store secret key"},
		"ONNXRUN_S3_REGION":     {"ONNXRUN_S3_REGION", S3Region(), "Object store region"},
		"ONNXRUN_S3_INSECURE":   {"ONNXRUN_S3_INSECURE", S3Insecure(), "Use plain HTTP for the object store"},
	}
}

// Values returns every variable's value formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Var returns an environment variable stripped of leading and trailing
// quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
