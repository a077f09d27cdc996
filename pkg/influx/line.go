// Package influx encodes UniFi DPI traffic datasets as InfluxDB line
// protocol and delivers them to the store's HTTP write endpoint in bounded,
// retried batches.
package influx

import (
	"strconv"
	"strings"
)

// EscapeTag escapes the line-protocol tag separators in v: commas, spaces
// and equals signs, in that order. An empty value becomes the literal
// "unknown" so the tag is never silently dropped by the store.
func EscapeTag(v string) string {
	if v == "" {
		return "unknown"
	}
	v = strings.ReplaceAll(v, ",", `\,`)
	v = strings.ReplaceAll(v, " ", `\ `)
	v = strings.ReplaceAll(v, "=", `\=`)
	return v
}

// EscapeFieldString renders v as a quoted string field value with embedded
// quotes escaped. An empty value renders as "".
func EscapeFieldString(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

type kv struct {
	key   string
	value string
}

// Point is one line-protocol measurement under construction. Tags and fields
// render in insertion order; values are escaped as they are added.
type Point struct {
	measurement string
	tags        []kv
	fields      []kv
	timestamp   int64
}

// NewPoint starts a point for measurement with a nanosecond timestamp.
func NewPoint(measurement string, timestampNs int64) *Point {
	return &Point{measurement: measurement, timestamp: timestampNs}
}

func (p *Point) AddTag(key, value string) *Point {
	p.tags = append(p.tags, kv{key: key, value: EscapeTag(value)})
	return p
}

func (p *Point) AddIntField(key string, value int64) *Point {
	p.fields = append(p.fields, kv{key: key, value: strconv.FormatInt(value, 10) + "i"})
	return p
}

func (p *Point) AddStringField(key, value string) *Point {
	p.fields = append(p.fields, kv{key: key, value: EscapeFieldString(value)})
	return p
}

func (p *Point) AddBoolField(key string, value bool) *Point {
	p.fields = append(p.fields, kv{key: key, value: strconv.FormatBool(value)})
	return p
}

// String renders the point as
// "measurement,tag=value field=1i,other="s" timestamp".
func (p *Point) String() string {
	var b strings.Builder

	b.WriteString(p.measurement)
	for _, t := range p.tags {
		b.WriteByte(',')
		b.WriteString(t.key)
		b.WriteByte('=')
		b.WriteString(t.value)
	}

	b.WriteByte(' ')
	for i, f := range p.fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(p.timestamp, 10))

	return b.String()
}
