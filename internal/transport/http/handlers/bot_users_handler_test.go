package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/jsonfile"
	audiencesvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/dto"
)

func TestBotUsersListPaginates(t *testing.T) {
	handler := NewBotUsersHandler(audiencesvc.NewService(annaAndBoris()), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/bot-users?page=2&limit=1&sort=name&order=ASC", nil)
	rr := httptest.NewRecorder()
	handler.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.BotUsersResponse](t, rr)
	if len(body.Data.Users) != 1 || body.Data.Users[0].Name != "Boris" {
		t.Fatalf("unexpected page: %+v", body.Data.Users)
	}
	want := dto.Pagination{CurrentPage: 2, TotalPages: 2, TotalUsers: 2, Limit: 1}
	if body.Data.Pagination != want {
		t.Fatalf("unexpected pagination: got %+v want %+v", body.Data.Pagination, want)
	}
}

func TestBotUsersListRejectsBadSort(t *testing.T) {
	handler := NewBotUsersHandler(audiencesvc.NewService(annaAndBoris()), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/bot-users?sort=zodiac_power", nil)
	rr := httptest.NewRecorder()
	handler.List(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestBotUsersDelete(t *testing.T) {
	roster := annaAndBoris()
	handler := NewBotUsersHandler(audiencesvc.NewService(roster), nil)

	req := httptest.NewRequest(http.MethodDelete, "/admin/bot-users/2", nil)
	req = req.WithContext(withURLParam(req.Context(), "id", "2"))
	rr := httptest.NewRecorder()
	handler.Delete(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if len(roster.deleted) != 1 || roster.deleted[0] != "2" {
		t.Fatalf("unexpected deleted ids: %v", roster.deleted)
	}
}

func TestBotUsersDeleteMissingUser(t *testing.T) {
	roster := annaAndBoris()
	roster.deleteErr = jsonfile.ErrNotFound
	handler := NewBotUsersHandler(audiencesvc.NewService(roster), nil)

	req := httptest.NewRequest(http.MethodDelete, "/admin/bot-users/404", nil)
	req = req.WithContext(withURLParam(req.Context(), "id", "404"))
	rr := httptest.NewRecorder()
	handler.Delete(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}
