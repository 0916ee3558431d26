// Package utctime provides the UTCTime type, a time.Time serialized in UTC
// with a fixed format, so encoded values are comparable as strings.
package utctime

import (
	"time"

	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

const TimeFormat = "2006-01-02T15:04:05.000Z"

// UTCTime serializes to %Y-%m-%dT%H:%M:%S.000Z.
type UTCTime time.Time

func From(t time.Time) UTCTime {
	return UTCTime(t.UTC())
}

func MustParse(s string) UTCTime {
	v := UTCTime{}
	if err := v.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return v
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func (v UTCTime) String() string {
	return FormatTime(v.Time())
}

func (v UTCTime) IsZero() bool {
	return v.Time().IsZero()
}

func (v UTCTime) Time() time.Time {
	return time.Time(v)
}

func (v UTCTime) After(target UTCTime) bool {
	return v.Time().After(target.Time())
}

func (v UTCTime) Sub(target UTCTime) time.Duration {
	return v.Time().Sub(target.Time())
}

func (v UTCTime) Add(d time.Duration) UTCTime {
	return From(v.Time().Add(d))
}

func (v UTCTime) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *UTCTime) UnmarshalText(data []byte) error {
	out, err := time.Parse(TimeFormat, string(data))
	if err != nil {
		return errors.Wrapf(err, `cannot parse UTC time "%s"`, string(data))
	}
	*v = From(out)
	return nil
}
