package service

import "testing"

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	digest, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if digest == "" || digest == "s3cret-pass" {
		t.Fatalf("expected opaque digest, got %q", digest)
	}
	if !VerifyPassword("s3cret-pass", digest) {
		t.Fatalf("expected verify to succeed against own digest")
	}
	if VerifyPassword("wrong-pass", digest) {
		t.Fatalf("expected verify to fail for wrong plaintext")
	}
}

func TestHashPassword_SaltedDigestsDiffer(t *testing.T) {
	first, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	second, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct digests for the same plaintext")
	}
	if !VerifyPassword("same-input", first) || !VerifyPassword("same-input", second) {
		t.Fatalf("expected both digests to verify")
	}
}

func TestVerifyPassword_MalformedDigest(t *testing.T) {
	cases := []string{"", "not-a-bcrypt-digest", "$2a$broken"}
	for _, digest := range cases {
		if VerifyPassword("anything", digest) {
			t.Fatalf("expected verify to return false for digest %q", digest)
		}
	}
}
