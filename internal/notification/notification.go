// Package notification formats and injects notifications into the GX
// notification centre.
package notification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// Type is the notification severity.
type Type int

const (
	Warning     Type = 0
	Alarm       Type = 1
	Information Type = 2
)

// String returns the lower-case name of the type.
func (t Type) String() string {
	switch t {
	case Warning:
		return "warning"
	case Alarm:
		return "alarm"
	case Information:
		return "information"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType accepts a number or a type name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "warning":
		return Warning, nil
	case "1", "alarm":
		return Alarm, nil
	case "2", "info", "information":
		return Information, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// Length limits.
const (
	MaxTitleLength   = 100
	MaxMessageLength = 500
)

// InjectPath is the platform path accepting formatted notifications.
const InjectPath = "/Notifications/Inject"

var controlCharPattern = regexp.MustCompile(`[\t\r\n]+`)

// Notification is one message for the notification centre.
type Notification struct {
	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Validate rejects what Format would have to truncate.
func (n Notification) Validate() error {
	var errs []error
	if n.Type < Warning || n.Type > Information {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidType, n.Type))
	}
	title := sanitize(n.Title)
	if title == "" {
		errs = append(errs, ErrEmptyTitle)
	}
	if l := utf8.RuneCountInString(title); l > MaxTitleLength {
		errs = append(errs, fmt.Errorf("%w: %d characters, max %d", ErrTitleTooLong, l, MaxTitleLength))
	}
	if l := utf8.RuneCountInString(sanitize(n.Message)); l > MaxMessageLength {
		errs = append(errs, fmt.Errorf("%w: %d characters, max %d", ErrMessageTooLong, l, MaxMessageLength))
	}
	return errors.Join(errs...)
}

// Format renders "<type>\t<title>\t<message>". Tabs and line breaks
// become single spaces, fields are trimmed and truncated to their limits.
func Format(t Type, title, message string) string {
	return strconv.Itoa(int(t)) + "\t" +
		truncate(sanitize(title), MaxTitleLength) + "\t" +
		truncate(sanitize(message), MaxMessageLength)
}

// String formats n.
func (n Notification) String() string {
	return Format(n.Type, n.Title, n.Message)
}

// Writer is the bus write surface. *bus.Client satisfies it.
type Writer interface {
	Write(ctx context.Context, addr bus.Address, value any) error
}

// Inject validates n and writes it to the platform service.
func Inject(ctx context.Context, w Writer, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	addr := bus.NewAddress(bus.PlatformService, InjectPath)
	if err := w.Write(ctx, addr, n.String()); err != nil {
		return fmt.Errorf("injecting notification: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.TrimSpace(controlCharPattern.ReplaceAllString(s, " "))
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit]))
}
