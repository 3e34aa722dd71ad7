package crypt

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestDESCryptShape(t *testing.T) {
	for _, pw := range []string{"test", "password", "mypass123"} {
		hash := DESCrypt(pw, "XX")
		if len(hash) != 13 {
			t.Errorf("DESCrypt(%q) = %q, want 13 chars", pw, hash)
		}
		if hash[:2] != "XX" {
			t.Errorf("DESCrypt(%q) = %q, want salt prefix", pw, hash)
		}
	}
}

func TestCheckDES(t *testing.T) {
	for _, salt := range []string{"XX", "ab", "..", "//"} {
		hash := DESCrypt("craftypass", salt)
		if !Check("craftypass", hash) {
			t.Errorf("salt %q: correct password rejected", salt)
		}
		if Check("wrongpass", hash) {
			t.Errorf("salt %q: wrong password accepted", salt)
		}
	}
}

func TestCheckBcrypt(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	hash := string(h)
	if !IsBcrypt(hash) {
		t.Fatalf("IsBcrypt(%q) = false", hash)
	}
	if !Check("s3cret", hash) {
		t.Error("correct password rejected")
	}
	if Check("S3cret", hash) {
		t.Error("wrong password accepted")
	}
}

func TestCheckRejectsEmpty(t *testing.T) {
	hash := DESCrypt("x", "XX")
	tests := []struct{ pw, stored string }{
		{"", hash},
		{"x", ""},
		{"x", "short"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if Check(tt.pw, tt.stored) {
			t.Errorf("Check(%q, %q) = true", tt.pw, tt.stored)
		}
	}
}

func TestHashRoundTrip(t *testing.T) {
	hash, err := Hash("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !Check("hunter2", hash) {
		t.Error("Hash output does not verify")
	}
}
