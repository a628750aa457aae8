package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pion/logging"

	"sfu-conference/internal/room"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("adminapi_test")
}

func TestMintTokenRequiresAPIKey(t *testing.T) {
	app := New(Config{APIKey: "secret-key", JWTSecret: "jwt-secret"}, room.NewRegistry(), nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/tokens", bytes.NewBufferString(`{"subject":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong-key")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401", resp.StatusCode)
	}
}

func TestMintTokenThenListRooms(t *testing.T) {
	rooms := room.NewRegistry()
	rooms.CreateOrGet("room-1", room.DefaultSettings())

	app := New(Config{APIKey: "secret-key", JWTSecret: "jwt-secret"}, rooms, nil, testLogger())

	mintReq := httptest.NewRequest(http.MethodPost, "/admin/v1/tokens", bytes.NewBufferString(`{"subject":"alice"}`))
	mintReq.Header.Set("Content-Type", "application/json")
	mintReq.Header.Set("Authorization", "Bearer secret-key")

	mintResp, err := app.Test(mintReq)
	if err != nil {
		t.Fatalf("app.Test mint: %v", err)
	}
	if mintResp.StatusCode != http.StatusCreated {
		t.Fatalf("mint status = %d; want 201", mintResp.StatusCode)
	}

	var minted mintTokenResponse
	if err := json.NewDecoder(mintResp.Body).Decode(&minted); err != nil {
		t.Fatalf("decode mint response: %v", err)
	}
	if minted.Token == "" {
		t.Fatal("expected non-empty token")
	}

	roomsReq := httptest.NewRequest(http.MethodGet, "/admin/v1/rooms", nil)
	roomsReq.Header.Set("Authorization", "Bearer "+minted.Token)

	roomsResp, err := app.Test(roomsReq)
	if err != nil {
		t.Fatalf("app.Test rooms: %v", err)
	}
	if roomsResp.StatusCode != http.StatusOK {
		t.Fatalf("rooms status = %d; want 200", roomsResp.StatusCode)
	}

	var summaries []roomSummary
	if err := json.NewDecoder(roomsResp.Body).Decode(&summaries); err != nil {
		t.Fatalf("decode rooms response: %v", err)
	}
	if len(summaries) != 1 || summaries[0].RoomID != "room-1" {
		t.Fatalf("summaries = %+v; want one entry for room-1", summaries)
	}
}

func TestListRoomsRejectsMissingToken(t *testing.T) {
	app := New(Config{APIKey: "secret-key", JWTSecret: "jwt-secret"}, room.NewRegistry(), nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/rooms", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401", resp.StatusCode)
	}
}
