package sysutil

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLogLevel_FromLogLevelEnv(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	// Values an operator might put in LOG_LEVEL for a relay or a till.
	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		" Debug\n":  zerolog.DebugLevel,
		"":          zerolog.InfoLevel,
		"INFO":      zerolog.InfoLevel,
		"warning":   zerolog.WarnLevel,
		"warn":      zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"verbose":   zerolog.InfoLevel,
		"trace-all": zerolog.InfoLevel,
	}
	for in, want := range cases {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", in, got, want)
		}
	}
}

func TestIsTruthy_EnvFlags(t *testing.T) {
	cases := []struct {
		env  string
		val  string
		want bool
	}{
		{"NO_COLOR", "1", true},
		{"NO_COLOR", "", false},
		{"SWAGGER_ENABLED", "TRUE", true},
		{"SWAGGER_ENABLED", "false", false},
		{"LOG_PRETTY", " yes ", true},
		{"LOG_PRETTY", "Y", true},
		{"LOG_PRETTY", "no", false},
		{"OTEL_ENABLED", "on", true},
		{"OTEL_ENABLED", "off", false},
		{"OTEL_ENABLED", "enabled", false},
	}
	for _, tc := range cases {
		t.Run(tc.env+"="+tc.val, func(t *testing.T) {
			t.Setenv(tc.env, tc.val)
			if got := IsTruthy(tc.val); got != tc.want {
				t.Fatalf("IsTruthy(%q) = %v; want %v", tc.val, got, tc.want)
			}
		})
	}
}

func TestFirstNonEmpty_FlagOverridesEnv(t *testing.T) {
	const fallback = "http://localhost:8080"

	cases := []struct {
		name, flag, env, want string
	}{
		{"flag wins", "http://relay.store-1:8080", "http://relay.env:8080", "http://relay.store-1:8080"},
		{"env when flag unset", "", "http://relay.env:8080", "http://relay.env:8080"},
		{"blank flag ignored", "   ", "http://relay.env:8080", "http://relay.env:8080"},
		{"default last", "", "", fallback},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.flag, tc.env, fallback); got != tc.want {
			t.Fatalf("%s: FirstNonEmpty = %q; want %q", tc.name, got, tc.want)
		}
	}

	if got := FirstNonEmpty("\t", " "); got != "" {
		t.Fatalf("all blank -> %q; want empty", got)
	}
	if got := FirstNonEmpty(" till.db "); got != " till.db " {
		t.Fatalf("value must be returned untouched, got %q", got)
	}
}
