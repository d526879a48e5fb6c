/*
config.go - Stored engine settings

PURPOSE:
  The tunable policy numbers of the engine live in the configuration
  collection, one document per key, and are read fresh on each operation
  that needs them. An operator edit takes effect on the next request with
  no restart. Unknown keys in the collection are ignored; absent keys
  fall back to the defaults below.

KEYS (the key is the document id):
  WeekendDays                 CSV of weekday numbers, 0=Sunday ("0,6")
  MonthlyCap                  hours, default 40
  TotalCap                    hours, default 120
  CertificateValidityMonths   default 12
  TimeZone                    IANA name, default Asia/Manila
*/
package coc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/govhr/coc-engine/docstore"
)

const (
	keyWeekendDays        = "WeekendDays"
	keyMonthlyCap         = "MonthlyCap"
	keyTotalCap           = "TotalCap"
	keyValidityMonths     = "CertificateValidityMonths"
	keyTimeZone           = "TimeZone"
	defaultTimeZone       = "Asia/Manila"
	defaultValidityMonths = 12
)

var (
	defaultMonthlyCap  = HoursFromInt(40)
	defaultTotalCap    = HoursFromInt(120)
	defaultWeekendDays = map[time.Weekday]bool{time.Saturday: true, time.Sunday: true}
)

// Settings is one consistent snapshot of the stored configuration.
type Settings struct {
	WeekendDays               map[time.Weekday]bool
	MonthlyCap                Hours
	TotalCap                  Hours
	CertificateValidityMonths int
	Location                  *time.Location
}

// IsWeekend reports whether the weekday falls on a configured weekend day.
func (s Settings) IsWeekend(d time.Weekday) bool { return s.WeekendDays[d] }

// WeekendCSV renders the weekend set back to its stored form.
func (s Settings) WeekendCSV() string {
	var parts []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.WeekendDays[d] {
			parts = append(parts, strconv.Itoa(int(d)))
		}
	}
	return strings.Join(parts, ",")
}

// ConfigStore reads and writes per-key configuration documents.
type ConfigStore struct {
	store docstore.Store
}

func NewConfigStore(store docstore.Store) *ConfigStore {
	return &ConfigStore{store: store}
}

func (s *ConfigStore) value(ctx context.Context, key string) (string, bool, error) {
	doc, err := s.store.Get(ctx, colConfiguration, key)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr(err)
	}
	v, ok := doc.Fields[fConfigValue].(string)
	return v, ok, nil
}

func (s *ConfigStore) Set(ctx context.Context, key, value, hint string) error {
	return storeErr(s.store.Upsert(ctx, colConfiguration, key, docstore.Fields{
		fConfigValue: value,
		fConfigHint:  hint,
	}))
}

// Load assembles a Settings snapshot, applying defaults for absent keys.
// A malformed stored value is a validation error, not a silent default:
// the operator needs to know the knob they set is being ignored.
func (s *ConfigStore) Load(ctx context.Context) (Settings, error) {
	out := Settings{
		WeekendDays:               defaultWeekendDays,
		MonthlyCap:                defaultMonthlyCap,
		TotalCap:                  defaultTotalCap,
		CertificateValidityMonths: defaultValidityMonths,
	}

	if v, ok, err := s.value(ctx, keyWeekendDays); err != nil {
		return Settings{}, err
	} else if ok {
		days, err := ParseWeekendDays(v)
		if err != nil {
			return Settings{}, err
		}
		out.WeekendDays = days
	}

	if v, ok, err := s.value(ctx, keyMonthlyCap); err != nil {
		return Settings{}, err
	} else if ok {
		h, err := parseHoursSetting(keyMonthlyCap, v)
		if err != nil {
			return Settings{}, err
		}
		out.MonthlyCap = h
	}

	if v, ok, err := s.value(ctx, keyTotalCap); err != nil {
		return Settings{}, err
	} else if ok {
		h, err := parseHoursSetting(keyTotalCap, v)
		if err != nil {
			return Settings{}, err
		}
		out.TotalCap = h
	}

	if v, ok, err := s.value(ctx, keyValidityMonths); err != nil {
		return Settings{}, err
	} else if ok {
		n, convErr := strconv.Atoi(strings.TrimSpace(v))
		if convErr != nil || n < 1 {
			return Settings{}, &FieldError{Subkind: BadDate, Field: keyValidityMonths,
				Message: fmt.Sprintf("not a positive month count: %q", v)}
		}
		out.CertificateValidityMonths = n
	}

	zone := defaultTimeZone
	if v, ok, err := s.value(ctx, keyTimeZone); err != nil {
		return Settings{}, err
	} else if ok && v != "" {
		zone = v
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Settings{}, &FieldError{Subkind: MissingField, Field: keyTimeZone,
			Message: fmt.Sprintf("unknown time zone %q", zone)}
	}
	out.Location = loc

	return out, nil
}

// ParseWeekendDays parses the stored CSV of weekday numbers (0=Sunday).
func ParseWeekendDays(csv string) (map[time.Weekday]bool, error) {
	out := map[time.Weekday]bool{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, &FieldError{Subkind: MissingField, Field: keyWeekendDays,
				Message: fmt.Sprintf("not a weekday number: %q", part)}
		}
		out[time.Weekday(n)] = true
	}
	return out, nil
}

func parseHoursSetting(key, v string) (Hours, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return Hours{}, &FieldError{Subkind: MissingField, Field: key,
			Message: fmt.Sprintf("not a non-negative hour count: %q", v)}
	}
	return HoursOf(f), nil
}
