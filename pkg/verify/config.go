package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SDK identification appended to every content URL.
const (
	SDKName    = "BerbixGo"
	SDKVersion = "0.1.3"
)

// DefaultVersion is the content path version used when Config.Version is empty.
const DefaultVersion = "v0"

// Environment selects one of the hosted content endpoints.
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// BaseURL returns the hosted endpoint for the environment. Unknown and
// empty environments resolve to production.
func (e Environment) BaseURL() string {
	switch e {
	case EnvironmentSandbox:
		return "https://verify.sandbox.berbix.com"
	case EnvironmentStaging:
		return "https://verify.staging.berbix.com"
	default:
		return "https://verify.berbix.com"
	}
}

func (e Environment) valid() bool {
	switch e {
	case "", EnvironmentSandbox, EnvironmentStaging, EnvironmentProduction:
		return true
	}
	return false
}

var (
	ErrMissingClientID    = errors.New("verify: client id is required")
	ErrConflictingBase    = errors.New("verify: environment and base url are mutually exclusive")
	ErrUnknownEnvironment = errors.New("verify: unknown environment")
	ErrAlreadyStarted     = errors.New("verify: bridge already started")
)

// Result is the outcome of a successful verification.
type Result struct {
	Value string `json:"value"`
}

// ErrorInfo describes a failed verification or an error the content
// rendered. Payload is passed through as received.
type ErrorInfo struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Config configures one verification session.
type Config struct {
	ClientID    string
	ClientToken string
	TemplateKey string
	Email       string
	Phone       string

	// Deprecated: use ClientToken.
	Continuation string
	// Deprecated: use TemplateKey.
	Role string

	// Endpoint selection. OverrideURL wins over everything; Environment
	// and BaseURL cannot both be set.
	Environment Environment
	BaseURL     string
	OverrideURL string
	Version     string

	OnComplete    func(Result)
	OnError       func(ErrorInfo)
	OnDisplay     func()
	OnStateChange func(json.RawMessage)
}

// Validate checks the config for contradictions.
func (c *Config) Validate() error {
	if c.OverrideURL != "" {
		return nil
	}
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	if !c.Environment.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, string(c.Environment))
	}
	if c.Environment != "" && c.BaseURL != "" {
		return ErrConflictingBase
	}
	return nil
}

// ContentURL builds the URL the content host loads.
func ContentURL(c Config) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if c.OverrideURL != "" {
		return c.OverrideURL, nil
	}

	base := c.BaseURL
	if base == "" {
		base = c.Environment.BaseURL()
	}
	version := c.Version
	if version == "" {
		version = DefaultVersion
	}

	template := c.TemplateKey
	if template == "" {
		template = c.Role
	}
	token := c.ClientToken
	if token == "" {
		token = c.Continuation
	}

	var q strings.Builder
	add := func(key, value string) {
		if q.Len() > 0 {
			q.WriteByte('&')
		}
		q.WriteString(key)
		q.WriteByte('=')
		q.WriteString(escape(value))
	}
	add("client_id", c.ClientID)
	if template != "" {
		add("template", template)
	}
	add("mode", "rn")
	if c.Email != "" {
		add("email", c.Email)
	}
	if c.Phone != "" {
		add("phone", c.Phone)
	}
	if token != "" {
		add("client_token", token)
	}
	add("sdk", SDKName+"-"+SDKVersion)

	return strings.TrimSuffix(base, "/") + "/" + version + "/verify?" + q.String(), nil
}

// escape percent-encodes a query value with spaces as %20. url.Values
// would sort the keys, so the query is assembled by hand.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func (c *Config) complete(r Result) {
	if c.OnComplete != nil {
		c.OnComplete(r)
	}
}

func (c *Config) error(e ErrorInfo) {
	if c.OnError != nil {
		c.OnError(e)
	}
}

func (c *Config) display() {
	if c.OnDisplay != nil {
		c.OnDisplay()
	}
}

func (c *Config) stateChange(p json.RawMessage) {
	if c.OnStateChange != nil {
		c.OnStateChange(p)
	}
}
