package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/adminshell/adminshell/internal/config"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, reg *websession.Registry) error
}
