package captcha

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDomainRegistry_RecordAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captcha_domains.txt")

	r, err := NewDomainRegistry(path, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Known("https://example.com") {
		t.Fatal("empty registry should know nothing")
	}

	for _, u := range []string{"https://www.Example.com/login", "https://example.com/other", "http://shop.test:8080/cart"} {
		if err := r.Record(u); err != nil {
			t.Fatalf("Record(%s): %v", u, err)
		}
	}
	if got := len(r.Domains()); got != 2 {
		t.Errorf("domains = %d, want 2", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if !strings.Contains(string(data), "example.com\t") || !strings.Contains(string(data), "shop.test\t") {
		t.Errorf("unexpected file contents:\n%s", data)
	}

	reloaded, err := NewDomainRegistry(path, quietLogger())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.Known("https://www.example.com/") || !reloaded.Known("http://shop.test") {
		t.Error("reloaded registry lost domains")
	}
	if !reloaded.Domains()["example.com"].Equal(r.Domains()["example.com"]) {
		t.Error("first-seen timestamp changed across reload")
	}
}

func TestDomainRegistry_MemoryOnly(t *testing.T) {
	r, err := NewDomainRegistry("", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Record("https://example.org/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Known("https://example.org/b") {
		t.Error("expected example.org to be known")
	}
}

func TestDomainRegistry_InvalidURL(t *testing.T) {
	r, _ := NewDomainRegistry("", quietLogger())

	if err := r.Record("not a url"); err == nil {
		t.Error("expected an error for a URL without host")
	}
	if r.Known("::::") {
		t.Error("invalid URL must not be known")
	}
}

func TestDomainRegistry_NilLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captcha_domains.txt")
	if err := os.WriteFile(path, []byte("example.net\t2024-01-01T00:00:00Z\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewDomainRegistry(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Record("https://example.org/login"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Known("https://example.net") || !r.Known("https://example.org") {
		t.Error("expected both domains to be known")
	}
}
