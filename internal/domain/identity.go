// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// PublicKeySize は公開鍵のバイト長（ed25519）。
	PublicKeySize = 32
	// MaxBlobSize はメタデータおよびトラスティ・シェアの最大バイト長。
	MaxBlobSize = 1024
	// DIDPrefix はDIDの文字列表現の接頭辞。
	DIDPrefix = "did:aura:"
)

// MaxAccountIDLength はアカウントIDの最大長。
const MaxAccountIDLength = 64

// AccountID はレジャー上のアカウント識別子を表す。
type AccountID string

// ParseAccountID は 1〜64文字の [A-Za-z0-9_-] からなるアカウントIDを検証する。
func ParseAccountID(s string) (AccountID, error) {
	if s == "" || len(s) > MaxAccountIDLength {
		return "", fmt.Errorf("%w: length must be 1..%d", ErrInvalidAccountID, MaxAccountIDLength)
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidAccountID, s)
		}
	}
	return AccountID(s), nil
}

// PublicKey は32バイトの公開鍵を表す。
type PublicKey [PublicKeySize]byte

// DID は公開鍵から導出される自己証明型識別子を表す。
type DID [32]byte

// GenerateDID は公開鍵のBLAKE2b-256ダイジェストとしてDIDを導出する。
func GenerateDID(publicKey PublicKey) DID {
	return DID(blake2b.Sum256(publicKey[:]))
}

// String は did:aura:<base58> 形式の文字列を返す。
func (d DID) String() string {
	return DIDPrefix + base58.Encode(d[:])
}

// Hex は16進数表現を返す。
func (d DID) Hex() string {
	return hex.EncodeToString(d[:])
}

// ParseDID は did:aura:<base58> 形式または64桁の16進数からDIDを復元する。
func ParseDID(s string) (DID, error) {
	var did DID
	var raw []byte
	var err error
	if strings.HasPrefix(s, DIDPrefix) {
		raw, err = base58.Decode(strings.TrimPrefix(s, DIDPrefix))
	} else {
		raw, err = hex.DecodeString(s)
	}
	if err != nil || len(raw) != len(did) {
		return did, fmt.Errorf("%w: %q", ErrInvalidDID, s)
	}
	copy(did[:], raw)
	return did, nil
}

// Hex は16進数表現を返す。
func (k PublicKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// ParsePublicKey は64桁の16進数から公開鍵を復元する。
func ParsePublicKey(s string) (PublicKey, error) {
	var key PublicKey
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != PublicKeySize {
		return key, ErrInvalidPublicKey
	}
	copy(key[:], raw)
	return key, nil
}

// IdentityRecord はアカウントに紐づくアイデンティティを表す。
// リカバリー実行時を除き不変。
type IdentityRecord struct {
	Account   AccountID
	DID       DID
	PublicKey PublicKey
	Metadata  []byte // 任意のメタデータ（リカバリーポリシーは含まない）
	CreatedAt uint64 // 作成時のブロック高
}
