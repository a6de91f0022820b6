package lims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/now"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payload is a request body keyed by field name. Values stay raw until an
// importer asks for them, so presence and null can be told apart.
type Payload map[string]json.RawMessage

// DecodePayload reads a JSON object. An empty body decodes to an empty payload.
func DecodePayload(r io.Reader, resource string) (Payload, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%s body over %d bytes: %w", resource, tooLarge.Limit, ErrTooLarge)
		}
		return nil, &ValidationError{Resource: resource, Message: "unreadable request body"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ValidationError{Resource: resource, Message: "request body must be a JSON object"}
	}
	if p == nil {
		return nil, &ValidationError{Resource: resource, Message: "request body must be a JSON object"}
	}
	return p, nil
}

// PayloadFromMap converts decoded values (for example from YAML) into a Payload.
func PayloadFromMap(values map[string]interface{}) (Payload, error) {
	p := make(Payload, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		p[k] = raw
	}
	return p, nil
}

// SetID overrides a reference key, used to inject path parameters.
func (p Payload) SetID(key string, id uint) {
	p[key] = json.RawMessage(strconv.FormatUint(uint64(id), 10))
}

func (p Payload) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Payload) isNull(key string) bool {
	raw, ok := p[key]
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type Mode int

const (
	// ModeCreate requires every declared field.
	ModeCreate Mode = iota
	// ModeUpdate applies only the supplied keys.
	ModeUpdate
)

type importContext struct {
	ctx  context.Context
	tx   *gorm.DB
	mode Mode
	now  time.Time
}

type pendingRef struct {
	field string
	table string
	id    uint
}

// decoder applies payload fields onto an entity copy. The first failure
// sticks and turns every later call into a no-op.
type decoder struct {
	ic       *importContext
	resource string
	payload  Payload
	err      error
	refs     []pendingRef
}

func (ic *importContext) decoder(resource string, p Payload, required ...string) *decoder {
	d := &decoder{ic: ic, resource: resource, payload: p}
	if ic.mode == ModeCreate {
		for _, key := range required {
			if !p.has(key) || p.isNull(key) {
				d.fail(key, "is required")
				break
			}
		}
	}
	return d
}

func (d *decoder) fail(field, msg string) {
	if d.err == nil {
		d.err = &ValidationError{Resource: d.resource, Field: field, Message: msg}
	}
}

// take reports whether key should be applied: present, and no prior failure.
func (d *decoder) take(key string) (json.RawMessage, bool) {
	if d.err != nil {
		return nil, false
	}
	raw, ok := d.payload[key]
	return raw, ok
}

func (d *decoder) str(key string, dst *string, required bool) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	if d.payload.isNull(key) {
		if required {
			d.fail(key, "is required")
			return
		}
		*dst = ""
		return
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		d.fail(key, "must be a string")
		return
	}
	if required && strings.TrimSpace(v) == "" {
		d.fail(key, "is required")
		return
	}
	*dst = v
}

func (d *decoder) intPtr(key string, dst **int) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	if d.payload.isNull(key) {
		*dst = nil
		return
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		d.fail(key, "must be an integer")
		return
	}
	*dst = &v
}

func (d *decoder) floatPtr(key string, dst **float64) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	if d.payload.isNull(key) {
		*dst = nil
		return
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		d.fail(key, "must be a number")
		return
	}
	*dst = &v
}

func (d *decoder) boolean(key string, dst *bool) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	if d.payload.isNull(key) {
		*dst = false
		return
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		d.fail(key, "must be a boolean")
		return
	}
	*dst = v
}

func (d *decoder) timestamp(key string, dst *time.Time) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || d.payload.isNull(key) {
		d.fail(key, "must be a timestamp string")
		return
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		d.fail(key, "is not a valid timestamp")
		return
	}
	*dst = t
}

// rawJSON keeps structured values exactly as submitted.
func (d *decoder) rawJSON(key string, dst *datatypes.JSON) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	if d.payload.isNull(key) {
		*dst = nil
		return
	}
	*dst = datatypes.JSON(append([]byte(nil), raw...))
}

// ref reads a required reference. The target is looked up in finish.
func (d *decoder) ref(key, table string, dst *uint) {
	if _, ok := d.take(key); !ok {
		return
	}
	if d.payload.isNull(key) {
		d.fail(key, "is required")
		return
	}
	if id, ok := d.parseID(key); ok {
		*dst = id
		d.refs = append(d.refs, pendingRef{field: key, table: table, id: id})
	}
}

// optRef reads a nullable reference. Null clears it without a lookup.
func (d *decoder) optRef(key, table string, dst **uint) {
	if _, ok := d.take(key); !ok {
		return
	}
	if d.payload.isNull(key) {
		*dst = nil
		return
	}
	if id, ok := d.parseID(key); ok {
		*dst = &id
		d.refs = append(d.refs, pendingRef{field: key, table: table, id: id})
	}
}

func (d *decoder) parseID(key string) (uint, bool) {
	var v uint64
	if err := json.Unmarshal(d.payload[key], &v); err != nil || v == 0 {
		d.fail(key, "must be a positive integer id")
		return 0, false
	}
	if uint64(uint(v)) != v {
		d.fail(key, "is out of range")
		return 0, false
	}
	return uint(v), true
}

// finish resolves references inside the request transaction and then checks
// the field rules on the fully applied entity.
func (d *decoder) finish(entity interface{}) error {
	if d.err != nil {
		return d.err
	}
	for _, ref := range d.refs {
		var n int64
		err := d.ic.tx.WithContext(d.ic.ctx).Table(ref.table).Where("id = ?", ref.id).Count(&n).Error
		if err != nil {
			return &StoreError{Op: "resolve " + ref.field, Err: err}
		}
		if n == 0 {
			return &ValidationError{
				Resource: d.resource,
				Field:    ref.field,
				Message:  fmt.Sprintf("references unknown id %d", ref.id),
			}
		}
	}
	return checkRules(d.resource, entity)
}

var rules = newRules()

func newRules() *validator.Validate {
	v := validator.New()
	// Report fields by their column name, which is also the payload key.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, part := range strings.Split(f.Tag.Get("gorm"), ";") {
			if name, ok := strings.CutPrefix(part, "column:"); ok {
				return name
			}
		}
		return f.Name
	})
	return v
}

func checkRules(resource string, entity interface{}) error {
	err := rules.Struct(entity)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Resource: resource, Field: fe.Field(), Message: ruleMessage(fe)}
	}
	return &ValidationError{Resource: resource, Message: err.Error()}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "email":
		return "must be an email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed rule " + fe.Tag()
	}
}

var zonelessTimes = &now.Config{
	TimeLocation: time.UTC,
	TimeFormats: []string{
		"2006-1-2",
		"2006-1-2 15:4",
		"2006-1-2 15:4:5",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02T15:04:05.999999999",
		"2006/01/02",
		"2006/01/02 15:04:05",
	},
}

// offsetTimes are ISO-like layouts RFC 3339 does not cover: a space before
// the date/time separator or offset, and the basic (compact) form. An
// explicit offset is honored; without one the value is UTC.
var offsetTimes = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05 -0700",
	"2006-01-02T15:04:05-0700",
	"20060102T150405Z07:00",
	"20060102T150405-0700",
	"20060102T150405",
}

// ParseTimestamp accepts RFC 3339 (any offset) or a zone-less ISO-like value
// taken as UTC, and returns the instant in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range offsetTimes {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if _, err := strconv.Atoi(s); err == nil {
		// Bare numbers would otherwise parse as a year or an hour.
		return time.Time{}, fmt.Errorf("ambiguous timestamp %q", s)
	}
	t, err := zonelessTimes.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatTimestamp renders a stored naive-UTC instant with a Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z")
}
