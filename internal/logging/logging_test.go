package logging

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func resetLoggingState() {
	mu.Lock()
	defer mu.Unlock()

	baseWriter = os.Stderr
	log.Logger = zerolog.New(baseWriter).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	isTerminalFn = func(fd int) bool { return false }
}

func TestInitJSONFormatSetsLevel(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{
		Format:    "json",
		Level:     "debug",
		Component: "collector",
	})

	mu.RLock()
	defer mu.RUnlock()

	if baseWriter != os.Stderr {
		t.Fatalf("expected base writer to be os.Stderr, got %#v", baseWriter)
	}

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected global level debug, got %s", zerolog.GlobalLevel())
	}
}

func TestInitConsoleFormatUsesConsoleWriter(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{
		Format: "console",
		Level:  "info",
	})

	mu.RLock()
	defer mu.RUnlock()

	if _, ok := baseWriter.(zerolog.ConsoleWriter); !ok {
		t.Fatalf("expected console writer, got %#v", baseWriter)
	}
}

func TestInitAutoFormatWithoutTerminalStaysJSON(t *testing.T) {
	t.Cleanup(resetLoggingState)

	isTerminalFn = func(fd int) bool { return false }

	Init(Config{Format: "auto", Level: "info"})

	mu.RLock()
	defer mu.RUnlock()

	if _, ok := baseWriter.(zerolog.ConsoleWriter); ok {
		t.Fatal("expected plain writer when stderr is not a terminal")
	}
}

func TestInitAutoFormatWithTerminalUsesConsole(t *testing.T) {
	t.Cleanup(resetLoggingState)

	isTerminalFn = func(fd int) bool { return true }

	Init(Config{Format: "auto", Level: "info"})

	mu.RLock()
	defer mu.RUnlock()

	if _, ok := baseWriter.(zerolog.ConsoleWriter); !ok {
		t.Fatalf("expected console writer for terminal stderr, got %#v", baseWriter)
	}
}

func TestParseLevel(t *testing.T) {
	t.Cleanup(resetLoggingState)

	cases := []struct {
		input string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestIsLevelEnabled(t *testing.T) {
	t.Cleanup(resetLoggingState)

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if IsLevelEnabled(zerolog.DebugLevel) {
		t.Fatal("debug should be disabled at warn level")
	}
	if !IsLevelEnabled(zerolog.ErrorLevel) {
		t.Fatal("error should be enabled at warn level")
	}
}
