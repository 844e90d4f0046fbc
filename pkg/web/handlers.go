package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-verify/pkg/camera"
	"github.com/teslashibe/go-verify/pkg/capture"
	"github.com/teslashibe/go-verify/pkg/hub"
)

// handleShell serves the page that frames the content
func (s *Server) handleShell(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(shellPage)
}

// handleContentWS relays between one shell page and the bridge
func (s *Server) handleContentWS(c *websocket.Conn) {
	client := hub.NewClient(s.content, c)

	if url := s.URL(); url != "" {
		data, err := json.Marshal(Command{Op: OpLoad, URL: url})
		if err == nil {
			client.Send(hub.NewJSONMessage(data))
		}
	}

	client.Run()
}

// handleSession returns the bridge state
func (s *Server) handleSession(c *fiber.Ctx) error {
	if s.OnSession == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "session not available",
		})
	}
	return c.JSON(s.OnSession())
}

func (s *Server) activeOverlay() *capture.Overlay {
	if s.mediator == nil {
		return nil
	}
	return s.mediator.Active()
}

// handleCapture returns the visible overlay
func (s *Server) handleCapture(c *fiber.Ctx) error {
	o := s.activeOverlay()
	if o == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active capture",
		})
	}
	return c.JSON(o.View())
}

// overlayAction runs fn against the visible overlay
func (s *Server) overlayAction(c *fiber.Ctx, name string, fn func(*capture.Overlay) (fiber.Map, error)) error {
	o := s.activeOverlay()
	if o == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "no active capture",
		})
	}

	result, err := fn(o)
	if err != nil {
		status := fiber.StatusUnprocessableEntity
		if isRejected(err) {
			status = fiber.StatusConflict
		}
		s.logger.Info("capture action rejected", "action", name, "error", err)
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if result == nil {
		result = fiber.Map{}
	}
	result["action"] = name
	result["ticket"] = o.Ticket().ID
	return c.JSON(result)
}

func (s *Server) handleShutter(c *fiber.Ctx) error {
	return s.overlayAction(c, "shutter", func(o *capture.Overlay) (fiber.Map, error) {
		return nil, o.Shutter()
	})
}

func (s *Server) handleTorch(c *fiber.Ctx) error {
	return s.overlayAction(c, "torch", func(o *capture.Overlay) (fiber.Map, error) {
		on, err := o.ToggleTorch()
		return fiber.Map{"torch": on}, err
	})
}

func (s *Server) handleFallback(c *fiber.Ctx) error {
	return s.overlayAction(c, "fallback", func(o *capture.Overlay) (fiber.Map, error) {
		return nil, o.Fallback()
	})
}

func (s *Server) handleExit(c *fiber.Ctx) error {
	return s.overlayAction(c, "exit", func(o *capture.Overlay) (fiber.Map, error) {
		return nil, o.Exit()
	})
}

// handleGetCamera returns the current capture options and the preset names
// PUT accepts.
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.cameraJSON())
}

func (s *Server) cameraJSON() fiber.Map {
	body := fiber.Map(s.options.OptionsJSON())
	body["presets"] = camera.PresetNames()
	return body
}

// handlePutCamera updates capture options
func (s *Server) handlePutCamera(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}

	if err := s.options.Update(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("camera options updated", "options", params)
	return c.JSON(s.cameraJSON())
}

// isRejected reports whether err is an overlay gating error.
func isRejected(err error) bool {
	return errors.Is(err, capture.ErrNotReady) ||
		errors.Is(err, capture.ErrBusy) ||
		errors.Is(err, capture.ErrWrongMode) ||
		errors.Is(err, capture.ErrClosed)
}
