// handlers/pplp_routes.go
package handlers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"pplp-service/middleware"
	"pplp-service/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// PPLPServices is everything the PPLP routes call into.
type PPLPServices struct {
	DB             *gorm.DB
	Actions        *services.ActionService
	Scoring        *services.ScoringService
	Batch          *services.BatchService
	Fraud          *services.FraudService
	Devices        *services.DeviceService
	Mint           *services.MintService
	Verifier       services.TokenVerifier
	ServiceToken   string
	RequestTimeout time.Duration
}

func SetupPPLPRoutes(app *fiber.App, svc PPLPServices) {
	timeout := svc.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx := func(c *fiber.Ctx) (context.Context, context.CancelFunc) {
		return context.WithTimeout(c.UserContext(), timeout)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := svc.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			log.Printf("[HEALTH] ❌ database unreachable: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	pplp := app.Group("/pplp")

	// 👤 End-user routes (auth per route so /internal keeps its own guard)
	userAuth := middleware.BearerAuthMiddleware(svc.Verifier)

	pplp.Post("/actions", userAuth, func(c *fiber.Ctx) error {
		var in services.SubmitActionInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON body"})
		}
		in.ActorID = middleware.UserID(c)

		ctx, cancel := reqCtx(c)
		defer cancel()
		res, err := svc.Actions.Submit(ctx, in)
		if err != nil {
			return respondError(c, "submit action", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":       true,
			"action_id":     res.ActionID,
			"evidence_hash": res.EvidenceHash,
			"status":        res.Status,
		})
	})

	pplp.Get("/actions", userAuth, func(c *fiber.Ctx) error {
		ctx, cancel := reqCtx(c)
		defer cancel()
		actions, err := svc.Actions.ListForActor(ctx, middleware.UserID(c), c.Query("status"), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, "list actions", err)
		}
		return c.JSON(fiber.Map{"success": true, "actions": actions})
	})

	pplp.Post("/devices", userAuth, func(c *fiber.Ctx) error {
		var body struct {
			DeviceHash string `json:"device_hash"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON body"})
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		device, err := svc.Devices.Register(ctx, middleware.UserID(c), body.DeviceHash)
		if err != nil {
			return respondError(c, "register device", err)
		}
		return c.JSON(fiber.Map{"success": true, "device": device})
	})

	// 🔐 Internal routes (service token only)
	internal := pplp.Group("/internal", middleware.ServiceTokenMiddleware(svc.ServiceToken))

	internal.Post("/score", func(c *fiber.Ctx) error {
		var body struct {
			ActionID string `json:"action_id"`
		}
		if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.ActionID) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "action_id is required"})
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		res, err := svc.Scoring.ScoreAction(ctx, body.ActionID, "internal")
		if err != nil {
			return respondError(c, "score action "+body.ActionID, err)
		}
		return c.JSON(struct {
			Success bool `json:"success"`
			*services.ScoreResult
		}{true, res})
	})

	internal.Post("/batch", func(c *fiber.Ctx) error {
		res, err := svc.Batch.Run(c.UserContext())
		if err != nil {
			return respondError(c, "batch process", err)
		}
		return c.JSON(struct {
			Success bool `json:"success"`
			*services.BatchResult
		}{true, res})
	})

	internal.Post("/mint-requests/:id/submitted", func(c *fiber.Ctx) error {
		var body struct {
			TxHash string `json:"tx_hash"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON body"})
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		req, err := svc.Mint.MarkSubmitted(ctx, c.Params("id"), body.TxHash)
		if err != nil {
			return respondError(c, "mark mint request submitted", err)
		}
		return c.JSON(fiber.Map{"success": true, "mint_request": req})
	})

	// 🛡️ Admin routes
	admin := pplp.Group("/admin", middleware.BearerAuthMiddleware(svc.Verifier), middleware.RequireAdmin())

	admin.Post("/fraud/detect", func(c *fiber.Ctx) error {
		var body struct {
			ActorID string `json:"actor_id"`
		}
		if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.ActorID) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "actor_id is required"})
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		report, err := svc.Fraud.Detect(ctx, strings.TrimSpace(body.ActorID))
		if err != nil {
			return respondError(c, "detect fraud", err)
		}
		return c.JSON(struct {
			Success bool `json:"success"`
			*services.FraudReport
		}{true, report})
	})

	admin.Post("/mint/authorize", func(c *fiber.Ctx) error {
		var in services.AuthorizeMintInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON body"})
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		auth, err := svc.Mint.Authorize(ctx, in)
		if err != nil {
			return respondError(c, "authorize mint", err)
		}
		log.Printf("[MINT] admin %s authorized %s", middleware.UserID(c), auth.MintRequestID)
		return c.JSON(struct {
			Success bool `json:"success"`
			*services.MintAuthorization
		}{true, auth})
	})

	admin.Get("/mint-requests/:id", func(c *fiber.Ctx) error {
		ctx, cancel := reqCtx(c)
		defer cancel()
		view, err := svc.Mint.Get(ctx, c.Params("id"))
		if err != nil {
			return respondError(c, "get mint request", err)
		}
		return c.JSON(fiber.Map{"success": true, "mint_request": view})
	})

	admin.Post("/devices/flag", func(c *fiber.Ctx) error {
		var body struct {
			DeviceHash string `json:"device_hash"`
			Flagged    *bool  `json:"flagged"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON body"})
		}
		flagged := body.Flagged == nil || *body.Flagged
		ctx, cancel := reqCtx(c)
		defer cancel()
		n, err := svc.Devices.SetFlag(ctx, body.DeviceHash, flagged)
		if err != nil {
			return respondError(c, "flag device", err)
		}
		return c.JSON(fiber.Map{"success": true, "devices_updated": n, "flagged": flagged})
	})
}

// respondError maps service errors to HTTP statuses. Unexpected errors are
// logged here and answered with a generic body.
func respondError(c *fiber.Ctx, op string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrNoPassingActions):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrDuplicateAction),
		errors.Is(err, services.ErrAlreadyScored),
		errors.Is(err, services.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrMintBlocked):
		status = fiber.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	}

	if status == fiber.StatusInternalServerError || status == fiber.StatusGatewayTimeout {
		log.Printf("❌ [%s] %s failed: %v", c.Path(), op, err)
		return c.Status(status).JSON(fiber.Map{"success": false, "error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}
