// internal/logging/redact.go
package logging

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redactedValue = "[REDACTED]"
	unsetValue    = "[UNSET]"
)

// Secret logs whether a credential is configured without its value.
func Secret(key string, val config.Secret) zap.Field {
	if !val.IsSet() {
		return zap.String(key, unsetValue)
	}
	return zap.String(key, redactedValue)
}

// keyMatcher decides whether a field key names a credential.
type keyMatcher map[string]struct{}

func newKeyMatcher(fields []string) keyMatcher {
	m := make(keyMatcher, len(fields))
	for _, f := range fields {
		m[lastSegment(strings.ToLower(f))] = struct{}{}
	}
	return m
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// match reports true for "api_key", "embeddings.api_key" and "jina_api_key"
// when "api_key" is listed.
func (m keyMatcher) match(key string) bool {
	leaf := lastSegment(strings.ToLower(key))
	if _, ok := m[leaf]; ok {
		return true
	}
	for f := range m {
		if strings.HasSuffix(leaf, "_"+f) {
			return true
		}
	}
	return false
}

// RedactingEncoder masks credential keys and credential-shaped string values
// before they reach the console.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     keyMatcher
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base. A disabled config passes everything through.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}
	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{
		Encoder:  base,
		keys:     newKeyMatcher(cfg.Fields),
		patterns: patterns,
	}, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	return e.keys != nil && e.keys.match(key)
}

// scrub replaces each pattern match inside val, keeping the surrounding text.
func (e *RedactingEncoder) scrub(val string) string {
	for _, re := range e.patterns {
		val = re.ReplaceAllString(val, redactedValue)
	}
	return val
}

// EncodeEntry masks the message and per-entry fields. The wrapped encoder
// writes those into its own clone, so the Add overrides below only see
// fields attached through With.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.keys == nil {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	ent.Message = e.scrub(ent.Message)
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.redactField(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *RedactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	if e.sensitive(f.Key) {
		if f.Type == zapcore.StringType && f.String == unsetValue {
			return f
		}
		return zap.String(f.Key, redactedValue)
	}
	switch f.Type {
	case zapcore.StringType:
		f.String = e.scrub(f.String)
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			if msg := e.scrub(err.Error()); msg != err.Error() {
				return zap.String(f.Key, msg)
			}
		}
	}
	return f
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitive(key) && val != unsetValue {
		val = redactedValue
	}
	e.Encoder.AddString(key, e.scrub(val))
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected masks the whole value; nested keys are not inspected.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, patterns: e.patterns}
}
