package winget

import (
	"context"
	"errors"
	"slices"
	"testing"

	"stockpile/internal/providers"
)

const showOutput = "Found 7-Zip [7zip.7zip]\r\n" +
	"Version: 24.09\r\n" +
	"Publisher: Igor Pavlov\r\n" +
	"Publisher Url: https://www.7-zip.org/\r\n" +
	"Author: Igor Pavlov\r\n" +
	"Moniker: 7zip\r\n" +
	"Description: Free and open source file archiver with a high compression ratio.\r\n" +
	"Homepage: https://www.7-zip.org/\r\n" +
	"License: LGPL-2.1-or-later\r\n" +
	"Tags:\r\n" +
	"  archiver\r\n" +
	"  compression\r\n" +
	"Installer:\r\n" +
	"  Installer Type: exe\r\n" +
	"  Installer Url: https://www.7-zip.org/a/7z2409-x64.exe\r\n"

var errNotFound = errors.New("executable file not found")

func found(string) (string, error)   { return "/usr/bin/winget", nil }
func missing(string) (string, error) { return "", errNotFound }

func TestLookupByNameParsesShow(t *testing.T) {
	var args []string
	p := New("winget", WithLookPath(found), WithRunner(func(_ context.Context, binary string, a ...string) ([]byte, error) {
		args = a
		return []byte(showOutput), nil
	}))

	result, err := p.LookupByName(context.Background(), "7-Zip", providers.LookupContext{})
	if err != nil || result == nil {
		t.Fatalf("lookup = %v, %v", result, err)
	}
	if !slices.Equal(args[:4], []string{"show", "--name", "7-Zip", "--exact"}) {
		t.Fatalf("args = %v", args)
	}
	if result.Title != "7-Zip" || result.Publisher != "Igor Pavlov" || result.Confidence != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Description != "Free and open source file archiver with a high compression ratio." {
		t.Fatalf("description = %q", result.Description)
	}
	if !slices.Equal(result.Genres, []string{"archiver", "compression"}) {
		t.Fatalf("tags = %v", result.Genres)
	}
	if result.RawExtras[providers.ExtraID] != "7zip.7zip" || result.RawExtras[providers.ExtraHomepage] != "https://www.7-zip.org/" {
		t.Fatalf("extras = %v", result.RawExtras)
	}
}

func TestLookupByNameNoPackage(t *testing.T) {
	p := New("", WithLookPath(found), WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("No package found matching input criteria.\r\n"), errors.New("exit status 1")
	}))
	result, err := p.LookupByName(context.Background(), "Unknown Tool", providers.LookupContext{})
	if err != nil || result != nil {
		t.Fatalf("expected quiet miss, got %+v, %v", result, err)
	}
}

func TestLookupByNameRunFailure(t *testing.T) {
	p := New("", WithLookPath(found), WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("boom")
	}))
	if _, err := p.LookupByName(context.Background(), "Tool", providers.LookupContext{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnavailableWithoutBinary(t *testing.T) {
	p := New("winget", WithLookPath(missing))
	if p.IsAvailable() || p.UnavailableReason() == "" {
		t.Fatal("expected unavailable")
	}
	if _, err := p.LookupByName(context.Background(), "x", providers.LookupContext{}); !errors.Is(err, providers.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
