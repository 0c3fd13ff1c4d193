package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "ErrNotFound"); got != "The requested item was not found." {
		t.Errorf("T(ErrNotFound) = %q", got)
	}
	if got := T(ctx, "ErrJobNotFound"); got != "Job not found." {
		t.Errorf("T(ErrJobNotFound) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "ErrJobNotFound"); got != "Задача не найдена." {
		t.Errorf("T(ErrJobNotFound) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrInvalidParam", map[string]any{"Name": "attemptId"})
	if got != "Invalid attemptId." {
		t.Errorf("Td(ErrInvalidParam) = %q, want 'Invalid attemptId.'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInvalidLanguage(t *testing.T) {
	if err := Init("not a language!"); err == nil {
		t.Error("expected error for invalid language tag")
	}
}

func TestMiddlewareUsesAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		header string
		want   string
	}{
		{"ru-RU,ru;q=0.9,en;q=0.8", "Задача не найдена."},
		{"de", "Job not found."},
		{"", "Job not found."},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			var got string
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "ErrJobNotFound")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
