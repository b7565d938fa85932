package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
)

func generateRandomKey(t testing.TB) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	return key
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy pool gone") }

func TestNewCipher_InvalidKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 24, 31, 33, 64} {
		if _, err := NewCipher(make([]byte, size)); err == nil {
			t.Errorf("expected error for %d-byte key", size)
		}
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(generateRandomKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"one block", bytes.Repeat([]byte{'a'}, 16)},
		{"block plus one", bytes.Repeat([]byte{'b'}, 17)},
		{"large", bytes.Repeat([]byte{0xAB}, 64*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := c.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			wantLen := IVSize + (len(tt.plaintext)/16+1)*16
			if len(envelope) != wantLen {
				t.Errorf("envelope length = %d, want %d", len(envelope), wantLen)
			}

			got, err := c.Decrypt(envelope)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Error("decrypted plaintext mismatch")
			}
		})
	}
}

// NIST SP 800-38A F.2.5, first block. PKCS#7 appends one more block.
func TestCipher_KnownVector(t *testing.T) {
	key := mustHex(t, "603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	plaintext := mustHex(t, "6bc1bee22e409f96e93d7e117393172a")
	want := mustHex(t, "f58c4c04d6e5f1ba779eabfb5f7bfbd6")

	c, err := NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	envelope, err := c.EncryptWithIV(iv, plaintext)
	if err != nil {
		t.Fatal(err)
	}

	if len(envelope) != IVSize+32 {
		t.Fatalf("envelope length = %d, want %d", len(envelope), IVSize+32)
	}
	if !bytes.Equal(envelope[:IVSize], iv) {
		t.Error("envelope must start with the IV")
	}
	if !bytes.Equal(envelope[IVSize:IVSize+16], want) {
		t.Errorf("first ciphertext block = %x, want %x", envelope[IVSize:IVSize+16], want)
	}

	got, err := c.Decrypt(envelope)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("known vector did not round trip")
	}
}

func TestCipher_Encrypt_UniqueIVs(t *testing.T) {
	c, _ := NewCipher(generateRandomKey(t))
	plaintext := []byte("same message")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		envelope, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatal(err)
		}
		iv := string(envelope[:IVSize])
		if seen[iv] {
			t.Fatal("IV reused")
		}
		seen[iv] = true
	}
}

func TestCipher_EncryptWithIV_InvalidSize(t *testing.T) {
	c, _ := NewCipher(generateRandomKey(t))
	for _, size := range []int{0, 12, 15, 17, 32} {
		if _, err := c.EncryptWithIV(make([]byte, size), []byte("x")); err == nil {
			t.Errorf("expected error for %d-byte IV", size)
		}
	}
}

func TestCipher_Encrypt_RandomSourceFailure(t *testing.T) {
	c, err := newCipher(generateRandomKey(t), failingReader{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Encrypt([]byte("x"))
	if !errors.Is(err, ErrRandomSourceUnavailable) {
		t.Errorf("expected ErrRandomSourceUnavailable, got %v", err)
	}
}

func TestCipher_Decrypt_Malformed(t *testing.T) {
	c, _ := NewCipher(generateRandomKey(t))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"nil", nil, ErrMalformedEnvelope},
		{"one byte", []byte{1}, ErrMalformedEnvelope},
		{"15 bytes", make([]byte, 15), ErrMalformedEnvelope},
		{"IV only", make([]byte, 16), ErrDecryptionFailure},
		{"partial block", make([]byte, 16+5), ErrDecryptionFailure},
		{"block and a half", make([]byte, 16+24), ErrDecryptionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCipher_Decrypt_WrongKey(t *testing.T) {
	c1, _ := NewCipher(generateRandomKey(t))
	c2, _ := NewCipher(generateRandomKey(t))

	failures := 0
	for i := 0; i < 100; i++ {
		envelope, _ := c1.Encrypt([]byte("secret"))
		if _, err := c2.Decrypt(envelope); errors.Is(err, ErrDecryptionFailure) {
			failures++
		}
	}
	if failures < 90 {
		t.Errorf("wrong key rejected %d/100 times, want at least 90", failures)
	}
}

func TestCipher_Close(t *testing.T) {
	c, _ := NewCipher(generateRandomKey(t))
	envelope, _ := c.Encrypt([]byte("x"))

	c.Close()
	c.Close()

	if !c.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if _, err := c.Encrypt([]byte("x")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Encrypt after Close = %v", err)
	}
	if _, err := c.Decrypt(envelope); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Decrypt after Close = %v", err)
	}
}

func TestCipher_CloseDuringUse(t *testing.T) {
	c, _ := NewCipher(generateRandomKey(t))
	plaintext := []byte("concurrent message")
	envelope, _ := c.Encrypt(plaintext)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := c.Encrypt(plaintext); err != nil && !errors.Is(err, ErrChannelClosed) {
					t.Errorf("Encrypt: %v", err)
					return
				}
				got, err := c.Decrypt(envelope)
				if err != nil {
					if !errors.Is(err, ErrChannelClosed) {
						t.Errorf("Decrypt: %v", err)
					}
					continue
				}
				if !bytes.Equal(got, plaintext) {
					t.Errorf("Decrypt = %q, want %q", got, plaintext)
					return
				}
			}
		}()
	}
	c.Close()
	wg.Wait()

	if !c.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
}

func TestUnpad(t *testing.T) {
	block := func(tail ...byte) []byte {
		b := bytes.Repeat([]byte{'x'}, 16-len(tail))
		return append(b, tail...)
	}

	tests := []struct {
		name   string
		data   []byte
		wantN  int
		wantOK int
	}{
		{"pad 1", block(1), 15, 1},
		{"pad 3", block(3, 3, 3), 13, 1},
		{"full block", bytes.Repeat([]byte{16}, 16), 0, 1},
		{"zero pad byte", block(0), 0, 0},
		{"pad too large", block(17), 0, 0},
		{"inconsistent", block(2, 3, 3), 0, 0},
		{"two blocks", append(bytes.Repeat([]byte{'y'}, 16), block(2, 2)...), 30, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := unpad(tt.data)
			if ok != tt.wantOK || (ok == 1 && n != tt.wantN) {
				t.Errorf("unpad() = (%d, %d), want (%d, %d)", n, ok, tt.wantN, tt.wantOK)
			}
		})
	}
}

func BenchmarkCipher_Encrypt(b *testing.B) {
	c, _ := NewCipher(generateRandomKey(b))
	plaintext := make([]byte, 1024)
	b.SetBytes(int64(len(plaintext)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Encrypt(plaintext)
	}
}

func BenchmarkCipher_Decrypt(b *testing.B) {
	c, _ := NewCipher(generateRandomKey(b))
	envelope, _ := c.Encrypt(make([]byte, 1024))
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Decrypt(envelope)
	}
}
