package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/model/persona"
)

type recordingCascade struct {
	deleted []string
}

func (c *recordingCascade) DeletePersonaData(_ context.Context, personaID string) error {
	c.deleted = append(c.deleted, personaID)
	return nil
}

func setupRouter() (*chi.Mux, *recordingCascade) {
	cascade := &recordingCascade{}
	handler := New(persona.NewMemoryStore(persona.Seed()), cascade, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, cascade
}

func TestListPersonas(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/personas", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var personas []persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &personas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(personas) != 3 {
		t.Fatalf("expected seeded personas, got %d", len(personas))
	}
}

func TestCreatePersona(t *testing.T) {
	r, _ := setupRouter()

	payload, _ := json.Marshal(persona.Persona{
		Name:         "Aunt May",
		Relationship: "Family",
		Personality:  []string{"kind"},
		SpeechStyle:  "soft-spoken",
	})
	req := httptest.NewRequest(http.MethodPost, "/personas", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created persona must get an id")
	}
}

func TestCreatePersonaValidation(t *testing.T) {
	r, _ := setupRouter()

	payload, _ := json.Marshal(persona.Persona{Name: "No Style"})
	req := httptest.NewRequest(http.MethodPost, "/personas", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUpdatePersona(t *testing.T) {
	r, _ := setupRouter()

	payload, _ := json.Marshal(persona.Persona{
		Name:         "Mom",
		Relationship: "Family",
		Personality:  []string{"warm"},
		SpeechStyle:  "even gentler now",
	})
	req := httptest.NewRequest(http.MethodPut, "/personas/mom", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.ID != "mom" || updated.SpeechStyle != "even gentler now" {
		t.Fatalf("unexpected persona %+v", updated)
	}
}

func TestUpdateUnknownPersona(t *testing.T) {
	r, _ := setupRouter()

	payload, _ := json.Marshal(persona.Persona{
		Name:         "Ghost",
		Relationship: "Nobody",
		Personality:  []string{"absent"},
		SpeechStyle:  "silent",
	})
	req := httptest.NewRequest(http.MethodPut, "/personas/ghost", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestDeletePersonaCascades(t *testing.T) {
	r, cascade := setupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/personas/mom", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if len(cascade.deleted) != 1 || cascade.deleted[0] != "mom" {
		t.Fatalf("cascade not invoked: %v", cascade.deleted)
	}

	req = httptest.NewRequest(http.MethodDelete, "/personas/mom", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", resp.Code)
	}
}
