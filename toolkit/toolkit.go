// Package toolkit holds helpers shared by the Google productivity toolkits.
package toolkit

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/agentdesk/tool"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Options configures a Google API toolkit.
type Options struct {
	// CredentialsFile is a service account or authorized user JSON file.
	// Empty means Application Default Credentials.
	CredentialsFile string
	// ClientOptions are appended after the credentials option.
	ClientOptions []option.ClientOption
	// PageSize is the page size used by list operations.
	PageSize int64
	// MaxPages bounds how many pages a single list call follows.
	MaxPages int
}

// DefaultOptions returns the defaults shared by the toolkits.
func DefaultOptions() Options {
	return Options{PageSize: 100, MaxPages: 10}
}

// Client builds the option list for a Google API service.
func (o Options) Client() []option.ClientOption {
	var opts []option.ClientOption
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}
	return append(opts, o.ClientOptions...)
}

// APIError converts a Google API error into a *tool.ToolError so the model
// sees the status and message. Other errors are returned unchanged.
func APIError(toolName string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	code := fmt.Sprintf("HTTP_%d", gerr.Code)
	if gerr.Code == http.StatusNotFound {
		code = tool.CodeNotFound
	}

	msg := gerr.Message
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}

	return &tool.ToolError{Tool: toolName, Message: msg, Code: code}
}

// NormalizeTime accepts RFC 3339 timestamps or plain dates (2006-01-02) and
// returns an RFC 3339 timestamp. Empty input stays empty.
func NormalizeTime(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return s, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", s)
	}
	return d.Format(time.RFC3339), nil
}
