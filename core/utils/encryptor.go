package utils

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// blobVersion prefixes every sealed blob and is bound as AAD.
const blobVersion byte = 0x01

var hkdfInfoBlob = []byte("driveshare.blob.v1")

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Encryptor struct {
	key []byte
}

// NewEncryptorFromString derives a 32 byte key from an arbitrary passphrase.
func NewEncryptorFromString(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfoBlob)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Encryptor{key: key}, nil
}

// EncryptToBlob returns [version][nonce][ciphertext+tag].
func (e *Encryptor) EncryptToBlob(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(plain)+aead.Overhead())
	out[0] = blobVersion
	copy(out[1:], nonce)
	return aead.Seal(out, nonce, plain, []byte{blobVersion}), nil
}

func (e *Encryptor) DecryptBlob(blob []byte) ([]byte, error) {
	if len(blob) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrCiphertextTooShort
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", blob[0])
	}
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, err
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	return aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], []byte{blobVersion})
}

// SealCompressed gzips plain before encrypting it.
func (e *Encryptor) SealCompressed(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(plain); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return e.EncryptToBlob(buf.Bytes())
}

func (e *Encryptor) OpenCompressed(blob []byte) ([]byte, error) {
	packed, err := e.DecryptBlob(blob)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
