package seal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const keyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	sealer, err := New(keyHex)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	for _, plain := range [][]byte{
		[]byte(""),
		[]byte("short"),
		bytes.Repeat([]byte("0123456789abcdef"), 4),
		bytes.Repeat([]byte{0xff}, 1000),
	} {
		ciphertext, ivHex, err := sealer.Seal(plain)
		if err != nil {
			t.Fatalf("seal %d bytes: %v", len(plain), err)
		}
		if len(ciphertext)%16 != 0 || len(ciphertext) == 0 {
			t.Fatalf("ciphertext must be whole padded blocks, got %d", len(ciphertext))
		}
		if bytes.Contains(ciphertext, plain) && len(plain) > 0 {
			t.Fatalf("ciphertext leaks plaintext")
		}

		opened, err := sealer.Open(ciphertext, ivHex)
		if err != nil {
			t.Fatalf("open %d bytes: %v", len(plain), err)
		}
		if !bytes.Equal(opened, plain) {
			t.Fatalf("roundtrip mismatch for %d bytes", len(plain))
		}
	}
}

func TestFreshIVPerFile(t *testing.T) {
	sealer, err := New(keyHex)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	_, iv1, err := sealer.Seal([]byte("same input"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	_, iv2, err := sealer.Seal([]byte("same input"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if iv1 == iv2 {
		t.Fatalf("iv must be fresh per file")
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	if _, err := New("not-hex"); err == nil {
		t.Fatalf("want error for non-hex key")
	}
	if _, err := New(strings.Repeat("ab", 16)); !errors.Is(err, ErrKeySize) {
		t.Fatalf("want ErrKeySize for short key, got %v", err)
	}
}

func TestOpenRejectsDamagedInput(t *testing.T) {
	sealer, err := New(keyHex)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	ciphertext, ivHex, err := sealer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := sealer.Open(ciphertext[:len(ciphertext)-1], ivHex); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("want ErrCiphertext for truncated input, got %v", err)
	}
	if _, err := sealer.Open(ciphertext, "abcd"); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("want ErrCiphertext for short iv, got %v", err)
	}

}

func TestUnpadRejectsBadPadding(t *testing.T) {
	cases := [][]byte{
		append(bytes.Repeat([]byte{0x00}, 15), 0x00),           // zero pad length
		append(bytes.Repeat([]byte{0x00}, 15), 0x11),           // pad length beyond block
		append(bytes.Repeat([]byte{0x02}, 14), 0x01, 0x02),     // inconsistent pad bytes
	}
	for _, block := range cases {
		if _, err := unpad(block, 16); !errors.Is(err, ErrPadding) {
			t.Fatalf("want ErrPadding for %x, got %v", block, err)
		}
	}

	valid := append([]byte("payload"), bytes.Repeat([]byte{0x09}, 9)...)
	plain, err := unpad(valid, 16)
	if err != nil {
		t.Fatalf("unpad valid block: %v", err)
	}
	if string(plain) != "payload" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}
