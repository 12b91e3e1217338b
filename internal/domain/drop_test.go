package domain

import "testing"

func TestValidateTitleDescriptionPassphrase(t *testing.T) {
	if err := ValidateTitle(string(make([]byte, TitleMaxLen))); err != nil {
		t.Fatalf("title at max should be valid: %v", err)
	}
	if err := ValidateTitle(string(make([]byte, TitleMaxLen+1))); err == nil {
		t.Fatal("title over max should be invalid")
	}
	if err := ValidateDescription(string(make([]byte, DescriptionMaxLen+1))); err == nil {
		t.Fatal("description over max should be invalid")
	}
	if err := ValidatePassphrase(""); err == nil {
		t.Fatal("empty passphrase should be invalid")
	}
	if err := ValidatePassphrase(string(make([]byte, PassphraseMaxLen+1))); err == nil {
		t.Fatal("passphrase over max should be invalid")
	}
}

func TestValidateMediaType(t *testing.T) {
	cases := []struct {
		mt      string
		wantErr bool
	}{
		{"", false},
		{"text/plain", false},
		{"application/octet-stream", false},
		{"noSlash", true},
		{"/missingtype", true},
		{"missingsubtype/", true},
		{"a/b/c", true},
	}
	for _, c := range cases {
		if err := ValidateMediaType(c.mt); (err != nil) != c.wantErr {
			t.Errorf("ValidateMediaType(%q) err=%v wantErr=%v", c.mt, err, c.wantErr)
		}
	}
}

func TestNormalizeMediaType(t *testing.T) {
	if got := NormalizeMediaType(""); got != DefaultMediaType {
		t.Fatalf("want default media type, got %q", got)
	}
	if got := NormalizeMediaType("text/plain"); got != "text/plain" {
		t.Fatalf("want passthrough, got %q", got)
	}
}

func TestDropOwnershipAndPublicProjection(t *testing.T) {
	d := Drop{OwnerID: "alice", PassphraseHash: "x"}
	if !d.IsOwnedBy("alice") {
		t.Fatal("expected ownership match")
	}
	if d.IsOwnedBy("") || d.IsOwnedBy(AnonymousOwner) {
		t.Fatal("anonymous must never be considered owner")
	}
	pub := d.ToPublic()
	if !pub.HasPassphrase {
		t.Fatal("expected HasPassphrase true in public projection")
	}
}

func TestStorageKeyFor_Stable(t *testing.T) {
	id := NewFileID()
	a := StorageKeyFor(id)
	b := StorageKeyFor(id)
	if a != b {
		t.Fatal("storage key derivation must be deterministic")
	}
	if len(a) != 2+1+2+1+60 {
		t.Fatalf("unexpected storage key shape: %q", a)
	}
}
