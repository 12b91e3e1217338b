package domain

import "testing"

func TestHashAndVerifyPassphrase(t *testing.T) {
	hash, err := HashPassphrase("correct horse", DefaultArgon2Params)
	if err != nil {
		t.Fatalf("HashPassphrase: %v", err)
	}
	if !VerifyPassphrase("correct horse", hash) {
		t.Fatal("expected verification to succeed")
	}
	if VerifyPassphrase("wrong", hash) {
		t.Fatal("expected verification to fail for wrong passphrase")
	}
}

func TestVerifyPassphrase_MalformedVerifier(t *testing.T) {
	if VerifyPassphrase("anything", "not-a-verifier") {
		t.Fatal("malformed verifier must never verify")
	}
	if VerifyPassphrase("anything", "") {
		t.Fatal("empty verifier must never verify")
	}
}

func TestHashPassphrase_UniqueSaltPerCall(t *testing.T) {
	a, err := HashPassphrase("same", DefaultArgon2Params)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := HashPassphrase("same", DefaultArgon2Params)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct verifiers due to random salt")
	}
	if !VerifyPassphrase("same", a) || !VerifyPassphrase("same", b) {
		t.Fatal("both verifiers should validate the same passphrase")
	}
}
