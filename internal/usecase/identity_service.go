// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/ports"
)

const tracerName = "aura-identity-service/usecase"

// IdentityService はアイデンティティ登録とソーシャルリカバリーのビジネスロジックを提供する。
// 各操作は ports.Store.Atomic の中で実行され、失敗時は何も残さない。
type IdentityService struct {
	store  ports.Store
	sealer ports.ShareSealer
	policy domain.Policy
	tracer trace.Tracer
}

// NewIdentityService は新しいIdentityServiceを生成する。sealer は nil でもよい。
func NewIdentityService(store ports.Store, sealer ports.ShareSealer, policy domain.Policy) *IdentityService {
	return &IdentityService{
		store:  store,
		sealer: sealer,
		policy: policy,
		tracer: otel.Tracer(tracerName),
	}
}

// Policy は適用中のポリシーを返す。
func (s *IdentityService) Policy() domain.Policy {
	return s.policy
}

func (s *IdentityService) startSpan(ctx context.Context, call domain.Call, caller domain.AccountID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "IdentityService."+string(call),
		trace.WithAttributes(
			attribute.String("aura.call", string(call)),
			attribute.String("aura.caller", string(caller)),
			attribute.Int64("aura.weight", int64(call.Weight())),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func emit(ctx context.Context, tx ports.Ledger, height uint64, event domain.Event) error {
	event.ID = uuid.New().String()
	event.Height = height
	if err := tx.AppendEvent(ctx, &event); err != nil {
		return fmt.Errorf("appending %s event: %w", event.Type, err)
	}
	return nil
}

// CreateIdentity は呼び出し元アカウントにアイデンティティを登録し、DIDを返す。
func (s *IdentityService) CreateIdentity(ctx context.Context, caller domain.AccountID, publicKey domain.PublicKey, metadata []byte) (did domain.DID, err error) {
	ctx, span := s.startSpan(ctx, domain.CallCreateIdentity, caller)
	defer func() { endSpan(span, err) }()

	err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
		existing, err := tx.FindIdentity(ctx, caller)
		if err != nil {
			return fmt.Errorf("finding identity: %w", err)
		}
		if existing != nil {
			return domain.ErrAlreadyExists
		}
		if len(metadata) > domain.MaxBlobSize {
			return domain.ErrMetadataTooLarge
		}

		did = domain.GenerateDID(publicKey)
		owner, found, err := tx.FindAccountByDID(ctx, did)
		if err != nil {
			return fmt.Errorf("finding DID index: %w", err)
		}
		if found && owner != caller && s.policy.DIDCollision == domain.DIDCollisionReject {
			return domain.ErrDIDCollision
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		record := &domain.IdentityRecord{
			Account:   caller,
			DID:       did,
			PublicKey: publicKey,
			Metadata:  metadata,
			CreatedAt: height,
		}
		if err := tx.SaveIdentity(ctx, record); err != nil {
			return fmt.Errorf("saving identity: %w", err)
		}
		if err := tx.PutDIDIndex(ctx, did, caller); err != nil {
			return fmt.Errorf("indexing DID: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:    domain.EventIdentityCreated,
			Account: caller,
			DID:     &did,
		})
	})
	if err != nil {
		return domain.DID{}, err
	}
	return did, nil
}

// GetIdentity は指定アカウントのアイデンティティを取得する。
func (s *IdentityService) GetIdentity(ctx context.Context, account domain.AccountID) (*domain.IdentityRecord, error) {
	var record *domain.IdentityRecord
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		record, err = tx.FindIdentity(ctx, account)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding identity: %w", err)
	}
	if record == nil {
		return nil, domain.ErrIdentityNotFound
	}
	return record, nil
}

// LookupByDID はDIDに対応するアカウントを取得する。
func (s *IdentityService) LookupByDID(ctx context.Context, did domain.DID) (domain.AccountID, error) {
	var account domain.AccountID
	var found bool
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		account, found, err = tx.FindAccountByDID(ctx, did)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("finding DID index: %w", err)
	}
	if !found {
		return "", domain.ErrIdentityNotFound
	}
	return account, nil
}

// GetBalance は指定アカウントの残高を取得する。
func (s *IdentityService) GetBalance(ctx context.Context, account domain.AccountID) (*domain.AccountBalance, error) {
	var balance *domain.AccountBalance
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		balance, err = tx.FindBalance(ctx, account)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding balance: %w", err)
	}
	return balance, nil
}

// ListEvents は seq が after より大きいイベントを古い順に最大 limit 件返す。
func (s *IdentityService) ListEvents(ctx context.Context, after uint64, limit int) ([]*domain.Event, error) {
	var events []*domain.Event
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		events, err = tx.ListEvents(ctx, after, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// CancelRecoveryMessage はリカバリー取消のために旧鍵で署名するメッセージを返す。
// 署名は lost、要求者、新しい公開鍵、実行可能高のすべてが一致する要求にだけ通用する。
// アカウントIDは長さを前置して連結する。
func CancelRecoveryMessage(req *domain.RecoveryRequest) []byte {
	msg := []byte("aura-cancel-recovery:")
	msg = appendField(msg, string(req.LostAccount))
	msg = appendField(msg, string(req.RequestingAccount))
	msg = append(msg, req.NewPublicKey[:]...)
	return binary.BigEndian.AppendUint64(msg, req.ExecuteAt)
}

func appendField(msg []byte, field string) []byte {
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(field)))
	return append(msg, field...)
}

func (s *IdentityService) logTransition(ctx context.Context, msg string, call domain.Call, args ...any) {
	slog.InfoContext(ctx, msg, append([]any{"call", string(call)}, args...)...)
}
