// internal/logging/testing.go
package logging

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry at TraceLevel and above for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger with no sampling and no redaction, so
// assertions see exactly what callers passed in.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core)},
		observed: observed,
	}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset drops the recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails unless an entry at level has a message containing msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len() == 0 {
		tb.Errorf("no %s entry containing %q; got %s", levelName(level), msg, t.summary())
	}
}

// AssertNotLogged fails if an entry at level has a message containing msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len(); n > 0 {
		tb.Errorf("%d unexpected %s entries containing %q", n, levelName(level), msg)
	}
}

// AssertField fails unless an entry whose message contains msg carries key
// with the expected encoded value; zap.Int fields compare as int64.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		if got, ok := entry.ContextMap()[key]; ok && reflect.DeepEqual(got, expected) {
			return
		}
	}
	tb.Errorf("no entry %q with %s=%v; got %s", msg, key, expected, t.summary())
}

// AssertNoValue fails if raw appears in any message or string field.
// Use it with the literal credentials a test configured.
func (t *TestLogger) AssertNoValue(tb testing.TB, raw string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if strings.Contains(entry.Message, raw) {
			tb.Errorf("entry %q contains the raw value", entry.Message)
		}
		for k, v := range entry.ContextMap() {
			if strings.Contains(fmt.Sprint(v), raw) {
				tb.Errorf("entry %q field %s contains the raw value", entry.Message, k)
			}
		}
	}
}

// AssertNoSecrets fails if a credential-named string field holds anything
// but a redaction marker, or a string field matches a credential pattern.
// It checks what callers logged, before any encoder runs.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	keys := newKeyMatcher(DefaultRedactionFields())
	patterns, err := compilePatterns(DefaultRedactionPatterns())
	if err != nil {
		tb.Fatal(err)
	}
	for _, entry := range t.observed.All() {
		for _, f := range entry.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if keys.match(f.Key) && f.String != "" && f.String != redactedValue && f.String != unsetValue {
				tb.Errorf("entry %q logs credential field %s unredacted", entry.Message, f.Key)
			}
			for _, re := range patterns {
				if re.MatchString(f.String) {
					tb.Errorf("entry %q field %s matches %s", entry.Message, f.Key, re)
				}
			}
		}
	}
}

func (t *TestLogger) summary() string {
	var b strings.Builder
	for i, e := range t.observed.All() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%q", levelName(e.Level), e.Message)
	}
	return "[" + b.String() + "]"
}
