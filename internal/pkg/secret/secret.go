// Package secret 解密配置文件中加密保存的 API 凭据。
//
// 密文格式：base64(nonce[24] || secretbox.Seal(...))，密钥为 SHA-256(encryption_key)。
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"okxbot/internal/types"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

func deriveKey(material string) *[32]byte {
	sum := sha256.Sum256([]byte(material))
	return &sum
}

// Encrypt 加密明文，供运维工具生成配置使用。
func Encrypt(keyMaterial, plaintext string) (string, error) {
	if strings.TrimSpace(keyMaterial) == "" {
		return "", errors.New("encryption key is empty")
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, deriveKey(keyMaterial))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密单个字段，失败返回 *types.DecryptionError。
func Decrypt(field, keyMaterial, ciphertext string) (string, error) {
	if strings.TrimSpace(keyMaterial) == "" {
		return "", &types.DecryptionError{Field: field, Err: errors.New("encryption key is empty")}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", &types.DecryptionError{Field: field, Err: err}
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", &types.DecryptionError{Field: field, Err: errors.New("ciphertext too short")}
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, deriveKey(keyMaterial))
	if !ok {
		return "", &types.DecryptionError{Field: field, Err: errors.New("authentication failed")}
	}
	return string(plain), nil
}
