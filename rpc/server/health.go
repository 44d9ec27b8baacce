package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
	"time"
)

// ErrUnknownCheck is returned when updating a check that was never registered
var ErrUnknownCheck = errors.New("health check not found")

// HealthAction is the built-in action answering with the health report
const HealthAction = "internal:health"

// --------------------------------------------------------------------------
// Health Status
// --------------------------------------------------------------------------

// HealthStatus is ordered from best to worst
type HealthStatus uint8

const (
	Healthy HealthStatus = iota
	Degraded
	Unhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s HealthStatus) MarshalText() ([]byte, error) {
	if s > Unhealthy {
		return nil, fmt.Errorf("invalid health status %d", s)
	}
	return []byte(s.String()), nil
}

func (s *HealthStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = Healthy
	case "degraded":
		*s = Degraded
	case "unhealthy":
		*s = Unhealthy
	default:
		return fmt.Errorf("invalid health status %q", text)
	}
	return nil
}

// --------------------------------------------------------------------------
// Health Service
// --------------------------------------------------------------------------

// HealthCheck is the last known result of one named check
type HealthCheck struct {
	Name      string            `json:"name"`
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	LastCheck time.Time         `json:"last_check"`
}

// HealthService keeps named checks. The overall status is the worst status
// of all checks, Healthy if there are none.
type HealthService struct {
	checks *xsync.MapOf[string, HealthCheck]
}

// NewHealthService creates an empty health service
func NewHealthService() *HealthService {
	return &HealthService{checks: xsync.NewMapOf[string, HealthCheck]()}
}

// RegisterCheck adds a healthy check. Registering an existing name resets it.
func (h *HealthService) RegisterCheck(name string) {
	h.checks.Store(name, HealthCheck{Name: name, Status: Healthy, LastCheck: time.Now()})
}

// UpdateCheck sets status and message of a registered check
func (h *HealthService) UpdateCheck(name string, status HealthStatus, message string) error {
	return h.compute(name, func(c *HealthCheck) {
		c.Status = status
		c.Message = message
		c.LastCheck = time.Now()
	})
}

// AddDetail attaches a key/value pair to a registered check
func (h *HealthService) AddDetail(name, key, value string) error {
	return h.compute(name, func(c *HealthCheck) {
		details := make(map[string]string, len(c.Details)+1)
		for k, v := range c.Details {
			details[k] = v
		}
		details[key] = value
		c.Details = details
	})
}

// Check returns a single check
func (h *HealthService) Check(name string) (HealthCheck, bool) {
	return h.checks.Load(name)
}

// Checks returns all checks sorted by name
func (h *HealthService) Checks() []HealthCheck {
	checks := make([]HealthCheck, 0, h.checks.Size())
	h.checks.Range(func(_ string, c HealthCheck) bool {
		checks = append(checks, c)
		return true
	})
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })
	return checks
}

// Status returns the aggregated status
func (h *HealthService) Status() HealthStatus {
	return worst(h.Checks())
}

// Report returns all checks with the aggregated status
func (h *HealthService) Report() HealthReport {
	checks := h.Checks()
	return HealthReport{Status: worst(checks), Checks: checks, Timestamp: time.Now()}
}

func (h *HealthService) compute(name string, update func(c *HealthCheck)) error {
	found := false
	h.checks.Compute(name, func(c HealthCheck, loaded bool) (HealthCheck, bool) {
		if !loaded {
			return c, true
		}
		found = true
		update(&c)
		return c, false
	})
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownCheck, name)
	}
	return nil
}

func worst(checks []HealthCheck) HealthStatus {
	status := Healthy
	for _, c := range checks {
		if c.Status > status {
			status = c.Status
		}
	}
	return status
}

// --------------------------------------------------------------------------
// Health Report
// --------------------------------------------------------------------------

// HealthReport is the answer of the internal:health action
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Checks    []HealthCheck `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
}

// MarshalBinary encodes the report with the format:
// - 1 byte: status
// - 8 bytes: timestamp (unix nanoseconds)
// - 4 bytes: check count, followed by the checks
//
// Each check is written as 1 byte status, 8 bytes last check, the name and
// message as 4 byte length and bytes, and a 4 byte detail count followed by
// the details sorted by key.
func (r HealthReport) MarshalBinary() ([]byte, error) {
	result := make([]byte, 0, 13+len(r.Checks)*32)
	result = append(result, byte(r.Status))
	result = binary.BigEndian.AppendUint64(result, uint64(r.Timestamp.UnixNano()))
	result = binary.BigEndian.AppendUint32(result, uint32(len(r.Checks)))

	appendString := func(s string) {
		result = binary.BigEndian.AppendUint32(result, uint32(len(s)))
		result = append(result, s...)
	}

	for _, c := range r.Checks {
		result = append(result, byte(c.Status))
		result = binary.BigEndian.AppendUint64(result, uint64(c.LastCheck.UnixNano()))
		appendString(c.Name)
		appendString(c.Message)

		keys := make([]string, 0, len(c.Details))
		for k := range c.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		result = binary.BigEndian.AppendUint32(result, uint32(len(keys)))
		for _, k := range keys {
			appendString(k)
			appendString(c.Details[k])
		}
	}
	return result, nil
}

// UnmarshalBinary decodes a report written by MarshalBinary
func (r *HealthReport) UnmarshalBinary(data []byte) error {
	pos := 0
	short := func(n int) error {
		if len(data)-pos < n {
			return fmt.Errorf("health report truncated at %d", pos)
		}
		return nil
	}
	readStatus := func() (HealthStatus, error) {
		if err := short(1); err != nil {
			return 0, err
		}
		s := HealthStatus(data[pos])
		pos++
		if s > Unhealthy {
			return 0, fmt.Errorf("invalid health status %d", s)
		}
		return s, nil
	}
	readTime := func() (time.Time, error) {
		if err := short(8); err != nil {
			return time.Time{}, err
		}
		t := time.Unix(0, int64(binary.BigEndian.Uint64(data[pos:pos+8])))
		pos += 8
		return t, nil
	}
	readCount := func(minSize int) (int, error) {
		if err := short(4); err != nil {
			return 0, err
		}
		n := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if uint64(n)*uint64(minSize) > uint64(len(data)-pos) {
			return 0, fmt.Errorf("health report declares %d entries in %d bytes", n, len(data)-pos)
		}
		return int(n), nil
	}
	readString := func() (string, error) {
		n, err := readCount(1)
		if err != nil {
			return "", err
		}
		s := string(data[pos : pos+n])
		pos += n
		return s, nil
	}

	var err error
	if r.Status, err = readStatus(); err != nil {
		return err
	}
	if r.Timestamp, err = readTime(); err != nil {
		return err
	}
	// status, time, name, message and detail count
	count, err := readCount(1 + 8 + 4 + 4 + 4)
	if err != nil {
		return err
	}

	r.Checks = nil
	if count > 0 {
		r.Checks = make([]HealthCheck, count)
	}
	for i := range r.Checks {
		c := &r.Checks[i]
		if c.Status, err = readStatus(); err != nil {
			return err
		}
		if c.LastCheck, err = readTime(); err != nil {
			return err
		}
		if c.Name, err = readString(); err != nil {
			return err
		}
		if c.Message, err = readString(); err != nil {
			return err
		}
		n, err := readCount(8)
		if err != nil {
			return err
		}
		if n > 0 {
			c.Details = make(map[string]string, n)
		}
		for j := 0; j < n; j++ {
			k, err := readString()
			if err != nil {
				return err
			}
			if c.Details[k], err = readString(); err != nil {
				return err
			}
		}
	}

	if pos != len(data) {
		return fmt.Errorf("health report has %d trailing bytes", len(data)-pos)
	}
	return nil
}
