package minestat

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/uuid"
	"github.com/mitchellh/mapstructure"
)

var (
	errInvalidUTF8   = errors.New("payload is not valid UTF-8")
	errRootNotObject = errors.New("payload root is not a JSON object")
)

// ServerStatus is the status document a server returned, decoded into a generic
// JSON tree. Values are nil, bool, float64, string, []any or map[string]any.
// The layout is up to the server, so it is not mapped onto a fixed schema.
type ServerStatus map[string]any

// ParseServerStatus decodes a raw status payload.
func ParseServerStatus(bb []byte) (ServerStatus, error) {
	if !utf8.Valid(bb) {
		return nil, newQueryError(StageParse, ErrMalformedPayload, errInvalidUTF8)
	}

	var v any
	if err := json.Unmarshal(bb, &v); err != nil {
		return nil, newQueryError(StageParse, ErrMalformedPayload, err)
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, newQueryError(StageParse, ErrMalformedPayload, errRootNotObject)
	}

	return ServerStatus(m), nil
}

// Lookup walks the tree along the given object keys.
func (s ServerStatus) Lookup(keys ...string) (any, bool) {
	var v any = map[string]any(s)
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}

		v, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func (s ServerStatus) lookupInt(keys ...string) (int, bool) {
	v, ok := s.Lookup(keys...)
	if !ok {
		return 0, false
	}

	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func (s ServerStatus) lookupString(keys ...string) string {
	v, _ := s.Lookup(keys...)
	str, _ := v.(string)
	return str
}

// Players returns players.online and players.max. ok is false if either is missing.
func (s ServerStatus) Players() (online, max int, ok bool) {
	online, okOnline := s.lookupInt("players", "online")
	max, okMax := s.lookupInt("players", "max")
	return online, max, okOnline && okMax
}

// Version returns version.name and version.protocol.
func (s ServerStatus) Version() (name string, protocol int) {
	protocol, _ = s.lookupInt("version", "protocol")
	return s.lookupString("version", "name"), protocol
}

func (s ServerStatus) Favicon() string {
	return s.lookupString("favicon")
}

// FaviconHash is zero when the server has no favicon.
func (s ServerStatus) FaviconHash() uint64 {
	favicon := s.Favicon()
	if favicon == "" {
		return 0
	}
	return xxhash.Sum64String(favicon)
}

// Description returns the message of the day as plain text.
// Chat components are flattened and § formatting codes are removed.
func (s ServerStatus) Description() string {
	v, ok := s.Lookup("description")
	if !ok {
		return ""
	}

	var sb strings.Builder
	flattenChat(&sb, v)
	return stripFormatting(sb.String())
}

func flattenChat(sb *strings.Builder, v any) {
	switch c := v.(type) {
	case string:
		sb.WriteString(c)
	case []any:
		for _, e := range c {
			flattenChat(sb, e)
		}
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			sb.WriteString(text)
		} else if translate, ok := c["translate"].(string); ok {
			sb.WriteString(translate)
		}
		if extra, ok := c["extra"]; ok {
			flattenChat(sb, extra)
		}
	}
}

func stripFormatting(s string) string {
	if !strings.ContainsRune(s, '§') {
		return s
	}

	var sb strings.Builder
	skip := false
	for _, r := range s {
		switch {
		case skip:
			skip = false
		case r == '§':
			skip = true
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// PlayerSample is an entry of the player list preview. Servers also use the
// sample for arbitrary text lines, so ID is not guaranteed to be a UUID.
type PlayerSample struct {
	Name string `mapstructure:"name" json:"name"`
	ID   string `mapstructure:"id" json:"id"`
}

// UUID parses the ID of the sample entry.
func (ps PlayerSample) UUID() (uuid.UUID, error) {
	return uuid.FromString(ps.ID)
}

type Summary struct {
	Version struct {
		Name     string `mapstructure:"name" json:"name"`
		Protocol int    `mapstructure:"protocol" json:"protocol"`
	} `mapstructure:"version" json:"version"`
	Players struct {
		Online int            `mapstructure:"online" json:"online"`
		Max    int            `mapstructure:"max" json:"max"`
		Sample []PlayerSample `mapstructure:"sample" json:"sample,omitempty"`
	} `mapstructure:"players" json:"players"`
	Description        string `mapstructure:"-" json:"description"`
	Favicon            string `mapstructure:"favicon" json:"favicon,omitempty"`
	EnforcesSecureChat bool   `mapstructure:"enforcesSecureChat" json:"enforcesSecureChat"`
	PreviewsChat       bool   `mapstructure:"previewsChat" json:"previewsChat"`
}

// Summary maps the well known fields of the status onto a typed struct.
// Unknown fields are ignored.
func (s ServerStatus) Summary() (Summary, error) {
	var sum Summary
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &sum,
	})
	if err != nil {
		return Summary{}, err
	}

	if err := dec.Decode(map[string]any(s)); err != nil {
		return Summary{}, err
	}
	sum.Description = s.Description()

	return sum, nil
}
