package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"classroom-relay/internal/storage"
)

// BoardHandler serves the board read/create surface. Late joiners call
// GetBoard for history before (or while) attaching to the live feed.
type BoardHandler struct {
	store *storage.GormBoardStore
}

// NewBoardHandler creates a board handler
func NewBoardHandler(store *storage.GormBoardStore) *BoardHandler {
	return &BoardHandler{store: store}
}

// CreateBoardRequest idempotent per classroom: a second create returns the
// existing board
type CreateBoardRequest struct {
	ClassroomID string  `json:"classroom_id"`
	Name        string  `json:"name"`
	Password    *string `json:"password,omitempty"`
}

// GetBoard returns a board with its full stroke history in accepted order
func (h *BoardHandler) GetBoard(c *fiber.Ctx) error {
	boardKey := c.Params("id")
	if boardKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "board id is required"})
	}

	board, strokes, err := h.store.GetBoard(boardKey)
	if err != nil {
		if errors.Is(err, storage.ErrBoardNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "board not found"})
		}
		log.Printf("[Board] Failed to load board %s: %v", boardKey, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load board"})
	}

	if board.IsProtected {
		password := c.Query("password")
		if password == "" {
			password = c.Get("X-Board-Password")
		}
		if board.Password == nil || password != *board.Password {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid board password"})
		}
	}

	return c.JSON(fiber.Map{
		"board":   board,
		"strokes": strokes,
	})
}

// CreateBoard creates the classroom's board, or returns the existing one
func (h *BoardHandler) CreateBoard(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(int64)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req CreateBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ClassroomID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "classroom_id is required"})
	}
	if req.Name == "" {
		req.Name = "Whiteboard " + req.ClassroomID
	}

	board, created, err := h.store.GetOrCreateByClassroom(req.ClassroomID, req.Name, userID, req.Password)
	if err != nil {
		log.Printf("[Board] Failed to create board for classroom %s: %v", req.ClassroomID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create board"})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"board": board})
}
