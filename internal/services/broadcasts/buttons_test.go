package broadcasts

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

func TestNormalizeButtons(t *testing.T) {
	in := []model.BroadcastButton{
		{Text: " Open site ", URL: "example.com/promo"},
		{Text: "Secure", URL: "https://astro.example.org"},
		{Text: "Local", URL: "http://localhost:3000/x"},
		{Text: "IP", URL: "10.0.0.5:8080"},
		{Text: "", URL: "example.com"},
		{Text: "No url", URL: "   "},
		{Text: "No dot", URL: "intranet"},
		{Text: "FTP", URL: "ftp://files.example.com"},
	}

	want := []model.BroadcastButton{
		{Text: "Open site", URL: "https://example.com/promo"},
		{Text: "Secure", URL: "https://astro.example.org"},
		{Text: "Local", URL: "http://localhost:3000/x"},
		{Text: "IP", URL: "https://10.0.0.5:8080"},
	}

	if diff := cmp.Diff(want, NormalizeButtons(in)); diff != "" {
		t.Errorf("NormalizeButtons mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeButtonsCapsCount(t *testing.T) {
	in := make([]model.BroadcastButton, 0, 15)
	for i := 0; i < 15; i++ {
		in = append(in, model.BroadcastButton{Text: "b", URL: "example.com"})
	}
	if got := NormalizeButtons(in); len(got) != maxButtons {
		t.Fatalf("unexpected button count: got %d want %d", len(got), maxButtons)
	}
}
