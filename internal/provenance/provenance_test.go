package provenance

import (
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key := []byte("test-signing-key")
	m := Manifest{
		MapName:     "goldrush",
		ArchivePath: "/out/goldrush.pk3",
		Digest:      "deadbeef",
		FileCount:   42,
		BuiltAt:     time.Unix(1700000000, 0).UTC(),
	}

	token, err := Sign(m, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := Verify(token, key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got.MapName != m.MapName || got.ArchivePath != m.ArchivePath || got.Digest != m.Digest || got.FileCount != m.FileCount {
		t.Errorf("got %+v, want %+v", got, m)
	}
	if !got.BuiltAt.Equal(m.BuiltAt) {
		t.Errorf("BuiltAt = %v, want %v", got.BuiltAt, m.BuiltAt)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, err := Sign(Manifest{MapName: "goldrush", BuiltAt: time.Unix(1700000000, 0)}, []byte("key-a"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := Verify(token, []byte("key-b")); err == nil {
		t.Error("expected verification failure with wrong key")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := Verify("not.a.jwt", []byte("key")); err == nil {
		t.Error("expected error for malformed token")
	}
}
