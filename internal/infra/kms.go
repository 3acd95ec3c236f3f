package infra

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// shareAAD はトラスティ・シェアの暗号文を用途に結びつける追加認証データ。
var shareAAD = []byte("aura-identity/trustee-share/v1")

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// ErrKMSIntegrity はKMSとの送受信でCRC32Cが一致しなかったことを表す。
var ErrKMSIntegrity = errors.New("kms response failed integrity check")

// KMSSealer はCloud KMSでトラスティ・シェアを封印する ports.ShareSealer 実装。
type KMSSealer struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSSealer は keyName の鍵を使うKMSSealerを生成する。
func NewKMSSealer(ctx context.Context, keyName string) (*KMSSealer, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS key name is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSSealer{
		client:  client,
		keyName: keyName,
	}, nil
}

func checksum(b []byte) *wrapperspb.Int64Value {
	return wrapperspb.Int64(int64(crc32.Checksum(b, crc32c)))
}

// Encrypt はシェアをCloud KMSで暗号化する。
func (s *KMSSealer) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := s.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                              s.keyName,
		Plaintext:                         plaintext,
		PlaintextCrc32C:                   checksum(plaintext),
		AdditionalAuthenticatedData:       shareAAD,
		AdditionalAuthenticatedDataCrc32C: checksum(shareAAD),
	})
	if err != nil {
		return nil, fmt.Errorf("encrypting share: %w", err)
	}
	if !resp.VerifiedPlaintextCrc32C || !resp.VerifiedAdditionalAuthenticatedDataCrc32C {
		return nil, fmt.Errorf("%w: request corrupted in transit", ErrKMSIntegrity)
	}
	if resp.CiphertextCrc32C == nil || resp.CiphertextCrc32C.Value != checksum(resp.Ciphertext).Value {
		return nil, fmt.Errorf("%w: ciphertext corrupted in transit", ErrKMSIntegrity)
	}
	return resp.Ciphertext, nil
}

// Decrypt は封印されたシェアをCloud KMSで復号する。
func (s *KMSSealer) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := s.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                              s.keyName,
		Ciphertext:                        ciphertext,
		CiphertextCrc32C:                  checksum(ciphertext),
		AdditionalAuthenticatedData:       shareAAD,
		AdditionalAuthenticatedDataCrc32C: checksum(shareAAD),
	})
	if err != nil {
		return nil, fmt.Errorf("decrypting share: %w", err)
	}
	if resp.PlaintextCrc32C == nil || resp.PlaintextCrc32C.Value != checksum(resp.Plaintext).Value {
		return nil, fmt.Errorf("%w: plaintext corrupted in transit", ErrKMSIntegrity)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (s *KMSSealer) Close() error {
	return s.client.Close()
}
