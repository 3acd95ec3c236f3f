package usecase

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/ports"
)

// RecoveryStatus は進行中のリカバリー要求とその判定状態を表す。
type RecoveryStatus struct {
	Request   *domain.RecoveryRequest
	Threshold uint8
	Height    uint64
	State     domain.RecoveryState
}

// InitiateRecovery は lost の鍵交換を要求する。呼び出し元は任意のアカウントでよく、
// しきい値と遅延期間が濫用を防ぐ。
func (s *IdentityService) InitiateRecovery(ctx context.Context, requester, lost domain.AccountID, newPublicKey domain.PublicKey) (req *domain.RecoveryRequest, err error) {
	ctx, span := s.startSpan(ctx, domain.CallInitiateRecovery, requester)
	defer func() { endSpan(span, err) }()

	err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
		record, err := tx.FindIdentity(ctx, lost)
		if err != nil {
			return fmt.Errorf("finding identity: %w", err)
		}
		if record == nil {
			return domain.ErrIdentityNotFound
		}
		cfg, err := tx.FindRecoveryConfig(ctx, lost)
		if err != nil {
			return fmt.Errorf("finding recovery config: %w", err)
		}
		if !cfg.Usable() {
			return domain.ErrRecoveryNotConfigured
		}
		if err := ensureNoActiveRecovery(ctx, tx, lost); err != nil {
			return err
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		// 前回サイクルの確認状態を持ち越さない
		if err := resetConfirmations(ctx, tx, lost); err != nil {
			return err
		}

		req = &domain.RecoveryRequest{
			LostAccount:       lost,
			RequestingAccount: requester,
			NewPublicKey:      newPublicKey,
			ExecuteAt:         height + cfg.DelayPeriod,
		}
		if err := tx.SaveActiveRecovery(ctx, req); err != nil {
			return fmt.Errorf("saving recovery request: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:              domain.EventRecoveryInitiated,
			LostAccount:       lost,
			RequestingAccount: requester,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "recovery initiated", domain.CallInitiateRecovery,
		"lost_account", lost,
		"requesting_account", requester,
		"execute_at", req.ExecuteAt,
	)
	return req, nil
}

// SubmitTrusteeShare はトラスティがシェアを提出し、進行中のリカバリー要求を承認する。
func (s *IdentityService) SubmitTrusteeShare(ctx context.Context, trustee, lost domain.AccountID, payload []byte) (req *domain.RecoveryRequest, err error) {
	ctx, span := s.startSpan(ctx, domain.CallSubmitTrusteeShare, trustee)
	defer func() { endSpan(span, err) }()

	if len(payload) > domain.MaxBlobSize {
		return nil, domain.ErrShareTooLarge
	}
	// 封印は外部呼び出しのため、提出できる状態かを読み取りだけで確かめてから行う
	if s.sealer != nil {
		err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
			_, _, err := pendingShare(ctx, tx, trustee, lost)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	sealed, err := s.sealShare(ctx, payload)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var share *domain.TrusteeShare
		var err error
		req, share, err = pendingShare(ctx, tx, trustee, lost)
		if err != nil {
			return err
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		share.Share = sealed
		share.Confirmed = true
		if err := tx.SaveTrusteeShare(ctx, share); err != nil {
			return fmt.Errorf("saving trustee share: %w", err)
		}
		req.SubmittedShares++
		if err := tx.SaveActiveRecovery(ctx, req); err != nil {
			return fmt.Errorf("saving recovery request: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:        domain.EventRecoveryShareProvided,
			LostAccount: lost,
			Trustee:     trustee,
		})
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// pendingShare は trustee がシェアを提出できる状態なら進行中の要求とシェア記録を返す。
func pendingShare(ctx context.Context, tx ports.Ledger, trustee, lost domain.AccountID) (*domain.RecoveryRequest, *domain.TrusteeShare, error) {
	req, err := tx.FindActiveRecovery(ctx, lost)
	if err != nil {
		return nil, nil, fmt.Errorf("finding active recovery: %w", err)
	}
	if req == nil || req.Completed {
		return nil, nil, domain.ErrNoActiveRecovery
	}
	share, err := tx.FindTrusteeShare(ctx, lost, trustee)
	if err != nil {
		return nil, nil, fmt.Errorf("finding trustee share: %w", err)
	}
	if share == nil {
		return nil, nil, domain.ErrTrusteeNotFound
	}
	if share.Confirmed {
		return nil, nil, domain.ErrAlreadyConfirmed
	}
	return req, share, nil
}

// ExecuteRecovery はしきい値と遅延期間を満たしたリカバリー要求を実行し、
// lost の公開鍵とDIDを置き換える。預託金はこの経路では返却しない。
func (s *IdentityService) ExecuteRecovery(ctx context.Context, caller, lost domain.AccountID) (record *domain.IdentityRecord, err error) {
	ctx, span := s.startSpan(ctx, domain.CallExecuteRecovery, caller)
	defer func() { endSpan(span, err) }()

	var req *domain.RecoveryRequest
	err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		req, err = tx.FindActiveRecovery(ctx, lost)
		if err != nil {
			return fmt.Errorf("finding active recovery: %w", err)
		}
		if req == nil || req.Completed {
			return domain.ErrNoActiveRecovery
		}
		cfg, err := tx.FindRecoveryConfig(ctx, lost)
		if err != nil {
			return fmt.Errorf("finding recovery config: %w", err)
		}
		if !cfg.Usable() {
			return domain.ErrRecoveryNotConfigured
		}
		if req.SubmittedShares < cfg.Threshold {
			return fmt.Errorf("%w: %d of %d", domain.ErrInsufficientShares, req.SubmittedShares, cfg.Threshold)
		}
		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}
		if height < req.ExecuteAt {
			return fmt.Errorf("%w: executable at %d, current %d", domain.ErrDelayPeriodNotPassed, req.ExecuteAt, height)
		}

		record, err = tx.FindIdentity(ctx, lost)
		if err != nil {
			return fmt.Errorf("finding identity: %w", err)
		}
		if record == nil {
			return domain.ErrIdentityNotFound
		}

		newDID := domain.GenerateDID(req.NewPublicKey)
		owner, found, err := tx.FindAccountByDID(ctx, newDID)
		if err != nil {
			return fmt.Errorf("finding DID index: %w", err)
		}
		if found && owner != lost && s.policy.DIDCollision == domain.DIDCollisionReject {
			return domain.ErrDIDCollision
		}

		// 旧DIDが lost を指している場合のみ逆引きを外す
		prevOwner, found, err := tx.FindAccountByDID(ctx, record.DID)
		if err != nil {
			return fmt.Errorf("finding DID index: %w", err)
		}
		if found && prevOwner == lost && record.DID != newDID {
			if err := tx.DeleteDIDIndex(ctx, record.DID); err != nil {
				return fmt.Errorf("deleting DID index: %w", err)
			}
		}

		record.PublicKey = req.NewPublicKey
		record.DID = newDID
		if err := tx.SaveIdentity(ctx, record); err != nil {
			return fmt.Errorf("saving identity: %w", err)
		}
		if err := tx.PutDIDIndex(ctx, newDID, lost); err != nil {
			return fmt.Errorf("indexing DID: %w", err)
		}
		if err := resetConfirmations(ctx, tx, lost); err != nil {
			return err
		}
		if err := tx.DeleteActiveRecovery(ctx, lost); err != nil {
			return fmt.Errorf("deleting recovery request: %w", err)
		}
		req.Completed = true

		return emit(ctx, tx, height, domain.Event{
			Type:        domain.EventRecoveryExecuted,
			LostAccount: lost,
			NewAccount:  req.RequestingAccount,
			DID:         &newDID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "recovery executed", domain.CallExecuteRecovery,
		"lost_account", lost,
		"new_account", req.RequestingAccount,
		"did", record.DID.String(),
	)
	return record, nil
}

// CancelRecovery は実行前のリカバリー要求を取り消す。
// 許可されるのは lost 自身、ガバナンスアカウント、または旧鍵による署名を提示した呼び出し元。
func (s *IdentityService) CancelRecovery(ctx context.Context, caller, lost domain.AccountID, signature []byte) (err error) {
	ctx, span := s.startSpan(ctx, domain.CallCancelRecovery, caller)
	defer func() { endSpan(span, err) }()

	err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
		req, err := tx.FindActiveRecovery(ctx, lost)
		if err != nil {
			return fmt.Errorf("finding active recovery: %w", err)
		}
		if req == nil || req.Completed {
			return domain.ErrNoActiveRecovery
		}
		authorized, err := s.canCancel(ctx, tx, caller, req, signature)
		if err != nil {
			return err
		}
		if !authorized {
			return domain.ErrNotAuthorized
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}
		if err := resetConfirmations(ctx, tx, lost); err != nil {
			return err
		}
		if err := tx.DeleteActiveRecovery(ctx, lost); err != nil {
			return fmt.Errorf("deleting recovery request: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:    domain.EventRecoveryCancelled,
			Account: lost,
		})
	})
	if err != nil {
		return err
	}
	s.logTransition(ctx, "recovery cancelled", domain.CallCancelRecovery,
		"lost_account", lost,
		"caller", caller,
	)
	return nil
}

func (s *IdentityService) canCancel(ctx context.Context, tx ports.Ledger, caller domain.AccountID, req *domain.RecoveryRequest, signature []byte) (bool, error) {
	if caller == req.LostAccount {
		return true, nil
	}
	if s.policy.GovernanceAccount != "" && caller == s.policy.GovernanceAccount {
		return true, nil
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	record, err := tx.FindIdentity(ctx, req.LostAccount)
	if err != nil {
		return false, fmt.Errorf("finding identity: %w", err)
	}
	if record == nil {
		return false, nil
	}
	msg := CancelRecoveryMessage(req)
	return ed25519.Verify(ed25519.PublicKey(record.PublicKey[:]), msg, signature), nil
}

// GetActiveRecovery は lost の進行中のリカバリー要求と状態を取得する。
func (s *IdentityService) GetActiveRecovery(ctx context.Context, lost domain.AccountID) (*RecoveryStatus, error) {
	var status *RecoveryStatus
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		req, err := tx.FindActiveRecovery(ctx, lost)
		if err != nil || req == nil {
			return err
		}
		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return err
		}
		var threshold uint8
		cfg, err := tx.FindRecoveryConfig(ctx, lost)
		if err != nil {
			return err
		}
		if cfg != nil {
			threshold = cfg.Threshold
		}
		status = &RecoveryStatus{
			Request:   req,
			Threshold: threshold,
			Height:    height,
			State:     req.State(threshold, height),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finding active recovery: %w", err)
	}
	if status == nil {
		return nil, domain.ErrNoActiveRecovery
	}
	return status, nil
}

func resetConfirmations(ctx context.Context, tx ports.Ledger, owner domain.AccountID) error {
	shares, err := tx.ListTrusteeShares(ctx, owner)
	if err != nil {
		return fmt.Errorf("listing trustee shares: %w", err)
	}
	for _, share := range shares {
		if !share.Confirmed {
			continue
		}
		share.Confirmed = false
		if err := tx.SaveTrusteeShare(ctx, share); err != nil {
			return fmt.Errorf("resetting trustee share: %w", err)
		}
	}
	return nil
}
