package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"classroom-relay/internal/model"
	"classroom-relay/internal/relay"
)

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error { return nil }

type nopStore struct{}

func (nopStore) AppendStroke(string, int64, relay.Stroke) error { return nil }
func (nopStore) ClearStrokes(string) error                      { return nil }

func TestConnectionReportsRooms(t *testing.T) {
	r := relay.New(nopStore{}, nil)
	client := r.Registry().Register(nopConn{}, 1, "A", model.RoleTutor)
	r.CallRooms().Join("R1", client)
	r.Boards().Join("board-1", client)

	h := NewHealthHandler(nil, nil, r)
	app := fiber.New()
	app.Get("/health/connections/:id", h.Connection)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/connections/"+client.ID, nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var body struct {
		ConnectionID string   `json:"connection_id"`
		Rooms        []string `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.ConnectionID != client.ID || len(body.Rooms) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestConnectionUnknownIDIs404(t *testing.T) {
	r := relay.New(nopStore{}, nil)
	h := NewHealthHandler(nil, nil, r)
	app := fiber.New()
	app.Get("/health/connections/:id", h.Connection)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/connections/no-such-id", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}
