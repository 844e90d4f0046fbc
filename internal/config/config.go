// Package config loads verifyhost settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teslashibe/go-verify/pkg/capture"
	"github.com/teslashibe/go-verify/pkg/verify"
)

// Camera backends.
const (
	CameraGocv = "gocv"
	CameraMock = "mock"
)

// ErrMissingClientID is returned when neither a client id nor an override
// URL is configured.
var ErrMissingClientID = errors.New("config: VERIFY_CLIENT_ID is required")

// Host is the verifyhost configuration.
type Host struct {
	ClientID    string `env:"VERIFY_CLIENT_ID"`
	ClientToken string `env:"VERIFY_CLIENT_TOKEN"`
	TemplateKey string `env:"VERIFY_TEMPLATE_KEY"`
	Email       string `env:"VERIFY_EMAIL"`
	Phone       string `env:"VERIFY_PHONE"`

	Environment string `env:"VERIFY_ENVIRONMENT"`
	BaseURL     string `env:"VERIFY_BASE_URL"`
	OverrideURL string `env:"VERIFY_OVERRIDE_URL"`
	Version     string `env:"VERIFY_VERSION" envDefault:"v0"`

	// Deprecated aliases
	Role         string `env:"VERIFY_ROLE"`
	Continuation string `env:"VERIFY_CONTINUATION"`

	Port     int    `env:"VERIFY_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Camera        string  `env:"VERIFY_CAMERA" envDefault:"gocv"`
	RearDevice    int     `env:"VERIFY_REAR_DEVICE" envDefault:"0"`
	FrontDevice   int     `env:"VERIFY_FRONT_DEVICE" envDefault:"1"`
	DisplayWidth  float64 `env:"VERIFY_DISPLAY_WIDTH" envDefault:"390"`
	DisplayHeight float64 `env:"VERIFY_DISPLAY_HEIGHT" envDefault:"844"`
	PersistDir    string  `env:"VERIFY_PERSIST_DIR"`

	// ReadyTimeout bounds camera initialization; zero waits indefinitely.
	ReadyTimeout time.Duration `env:"VERIFY_READY_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
func Load() (*Host, error) {
	h, err := env.ParseAs[Host]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

// Validate checks values env cannot check by itself.
func (h *Host) Validate() error {
	if h.ClientID == "" && h.OverrideURL == "" {
		return ErrMissingClientID
	}
	switch h.Camera {
	case CameraGocv, CameraMock:
	default:
		return fmt.Errorf("config: VERIFY_CAMERA must be %q or %q, got %q", CameraGocv, CameraMock, h.Camera)
	}
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("config: VERIFY_PORT out of range: %d", h.Port)
	}
	if h.DisplayWidth <= 0 || h.DisplayHeight <= 0 {
		return errors.New("config: display size must be positive")
	}
	if h.ReadyTimeout < 0 {
		return fmt.Errorf("config: VERIFY_READY_TIMEOUT must not be negative: %v", h.ReadyTimeout)
	}
	cfg := h.VerifyConfig()
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, verify.ErrConflictingBase) {
			return fmt.Errorf("config: set VERIFY_ENVIRONMENT or VERIFY_BASE_URL, not both: %w", err)
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// VerifyConfig maps the host settings onto a bridge config without
// callbacks.
func (h *Host) VerifyConfig() verify.Config {
	return verify.Config{
		ClientID:     h.ClientID,
		ClientToken:  h.ClientToken,
		TemplateKey:  h.TemplateKey,
		Email:        h.Email,
		Phone:        h.Phone,
		Continuation: h.Continuation,
		Role:         h.Role,
		Environment:  verify.Environment(h.Environment),
		BaseURL:      h.BaseURL,
		OverrideURL:  h.OverrideURL,
		Version:      h.Version,
	}
}

// Display returns the display the capture guides are laid out on.
func (h *Host) Display() capture.Display {
	return capture.Display{Width: h.DisplayWidth, Height: h.DisplayHeight}
}

// Addr returns the listen address.
func (h *Host) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(h.Port))
}
