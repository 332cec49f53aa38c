package externalapi

import "time"

// DomainTimestamp is a point in time expressed as milliseconds since the
// Unix epoch, matching the on-wire representation used in block headers.
type DomainTimestamp int64

// DomainDuration is a span of time expressed in milliseconds.
type DomainDuration int64

const millisecondsInSecond = int64(time.Second / time.Millisecond)

// Now returns the current time truncated to millisecond precision.
func Now() DomainTimestamp {
	return TimestampFromTime(time.Now())
}

// TimestampFromTime converts a time.Time into a DomainTimestamp.
func TimestampFromTime(t time.Time) DomainTimestamp {
	return DomainTimestamp(t.UnixNano() / int64(time.Millisecond))
}

// ToTime converts a DomainTimestamp back into a time.Time.
func (ts DomainTimestamp) ToTime() time.Time {
	seconds := int64(ts) / millisecondsInSecond
	nanoseconds := (int64(ts) - seconds*millisecondsInSecond) * int64(time.Millisecond)
	return time.Unix(seconds, nanoseconds)
}

// Add returns ts shifted forward by d.
func (ts DomainTimestamp) Add(d DomainDuration) DomainTimestamp {
	return ts + DomainTimestamp(d)
}

// Sub returns the duration elapsed between other and ts (ts - other).
func (ts DomainTimestamp) Sub(other DomainTimestamp) DomainDuration {
	return DomainDuration(ts - other)
}

// Before returns whether ts happens strictly before other.
func (ts DomainTimestamp) Before(other DomainTimestamp) bool {
	return ts < other
}

// After returns whether ts happens strictly after other.
func (ts DomainTimestamp) After(other DomainTimestamp) bool {
	return ts > other
}

// Milliseconds returns the duration as a plain int64 of milliseconds.
func (d DomainDuration) Milliseconds() int64 {
	return int64(d)
}
