package usecase

import (
	"context"
	"fmt"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/ports"
)

// ConfigureRecovery は呼び出し元のリカバリー設定を作成し、預託金を予約する。
// 前提条件は設定済み、しきい値、トラスティ数、トラスティのアイデンティティの順に検査する。
func (s *IdentityService) ConfigureRecovery(ctx context.Context, caller domain.AccountID, threshold int, trustees []domain.AccountID) (cfg *domain.RecoveryConfig, err error) {
	ctx, span := s.startSpan(ctx, domain.CallConfigureRecovery, caller)
	defer func() { endSpan(span, err) }()

	p := s.policy
	err = s.store.Atomic(ctx, func(tx ports.Ledger) error {
		existing, err := tx.FindRecoveryConfig(ctx, caller)
		if err != nil {
			return fmt.Errorf("finding recovery config: %w", err)
		}
		if existing != nil {
			return domain.ErrAlreadyConfigured
		}
		if threshold < int(p.MinThreshold) || threshold > int(p.MaxThreshold) {
			return domain.ErrInvalidThreshold
		}
		if len(trustees) < threshold || len(trustees) > int(p.MaxTrustees) {
			return domain.ErrTooManyTrustees
		}
		for _, trustee := range trustees {
			record, err := tx.FindIdentity(ctx, trustee)
			if err != nil {
				return fmt.Errorf("finding trustee identity: %w", err)
			}
			if record == nil {
				return fmt.Errorf("%w: trustee %s", domain.ErrIdentityNotFound, trustee)
			}
		}
		seen := make(map[domain.AccountID]struct{}, len(trustees))
		for _, trustee := range trustees {
			if trustee == caller {
				return domain.ErrSelfTrustee
			}
			if _, dup := seen[trustee]; dup {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateTrustee, trustee)
			}
			seen[trustee] = struct{}{}
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		deposit := p.RecoveryDeposit
		if err := tx.Reserve(ctx, caller, deposit); err != nil {
			return fmt.Errorf("reserving deposit: %w", err)
		}

		cfg = &domain.RecoveryConfig{
			Owner:         caller,
			Threshold:     uint8(threshold),
			TotalTrustees: uint8(len(trustees)),
			DelayPeriod:   p.RecoveryDelay,
			Active:        true,
			Deposit:       deposit,
		}
		if err := tx.SaveRecoveryConfig(ctx, cfg); err != nil {
			return fmt.Errorf("saving recovery config: %w", err)
		}
		if err := tx.SaveRecoveryDeposit(ctx, caller, deposit); err != nil {
			return fmt.Errorf("saving recovery deposit: %w", err)
		}

		for _, trustee := range trustees {
			share := &domain.TrusteeShare{Owner: caller, Trustee: trustee}
			if err := tx.SaveTrusteeShare(ctx, share); err != nil {
				return fmt.Errorf("saving trustee share: %w", err)
			}
			if err := emit(ctx, tx, height, domain.Event{
				Type:    domain.EventTrusteeAdded,
				Account: caller,
				Trustee: trustee,
			}); err != nil {
				return err
			}
		}

		return emit(ctx, tx, height, domain.Event{
			Type:          domain.EventRecoveryConfigured,
			Account:       caller,
			Threshold:     cfg.Threshold,
			TotalTrustees: cfg.TotalTrustees,
		})
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddTrustee は呼び出し元のリカバリー設定にトラスティを追加する。
func (s *IdentityService) AddTrustee(ctx context.Context, caller, trustee domain.AccountID) (err error) {
	ctx, span := s.startSpan(ctx, domain.CallAddTrustee, caller)
	defer func() { endSpan(span, err) }()

	return s.store.Atomic(ctx, func(tx ports.Ledger) error {
		cfg, err := tx.FindRecoveryConfig(ctx, caller)
		if err != nil {
			return fmt.Errorf("finding recovery config: %w", err)
		}
		if cfg == nil {
			return domain.ErrRecoveryNotConfigured
		}
		if cfg.TotalTrustees >= s.policy.MaxTrustees {
			return domain.ErrTooManyTrustees
		}
		record, err := tx.FindIdentity(ctx, trustee)
		if err != nil {
			return fmt.Errorf("finding trustee identity: %w", err)
		}
		if record == nil {
			return fmt.Errorf("%w: trustee %s", domain.ErrIdentityNotFound, trustee)
		}
		if trustee == caller {
			return domain.ErrSelfTrustee
		}
		existing, err := tx.FindTrusteeShare(ctx, caller, trustee)
		if err != nil {
			return fmt.Errorf("finding trustee share: %w", err)
		}
		if existing != nil {
			return domain.ErrAlreadyTrustee
		}
		if err := ensureNoActiveRecovery(ctx, tx, caller); err != nil {
			return err
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		if err := tx.SaveTrusteeShare(ctx, &domain.TrusteeShare{Owner: caller, Trustee: trustee}); err != nil {
			return fmt.Errorf("saving trustee share: %w", err)
		}
		cfg.TotalTrustees++
		if err := tx.SaveRecoveryConfig(ctx, cfg); err != nil {
			return fmt.Errorf("saving recovery config: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:    domain.EventTrusteeAdded,
			Account: caller,
			Trustee: trustee,
		})
	})
}

// RemoveTrustee は呼び出し元のリカバリー設定からトラスティを削除する。
// 残りのトラスティ数がしきい値を下回る場合、ポリシーに従いしきい値を引き下げるか拒否する。
// 最後の一人は削除できない。設定ごと外すには DeactivateRecovery を使う。
func (s *IdentityService) RemoveTrustee(ctx context.Context, caller, trustee domain.AccountID) (err error) {
	ctx, span := s.startSpan(ctx, domain.CallRemoveTrustee, caller)
	defer func() { endSpan(span, err) }()

	return s.store.Atomic(ctx, func(tx ports.Ledger) error {
		cfg, err := tx.FindRecoveryConfig(ctx, caller)
		if err != nil {
			return fmt.Errorf("finding recovery config: %w", err)
		}
		if cfg == nil {
			return domain.ErrRecoveryNotConfigured
		}
		share, err := tx.FindTrusteeShare(ctx, caller, trustee)
		if err != nil {
			return fmt.Errorf("finding trustee share: %w", err)
		}
		if share == nil {
			return domain.ErrTrusteeNotFound
		}
		if err := ensureNoActiveRecovery(ctx, tx, caller); err != nil {
			return err
		}

		// 最後のトラスティはポリシーに関わらず外せない
		if cfg.TotalTrustees <= 1 {
			return fmt.Errorf("%w: cannot remove the last trustee", domain.ErrInvalidThreshold)
		}
		remaining := cfg.TotalTrustees - 1
		if cfg.Threshold > remaining {
			if s.policy.ThresholdOnRemoval == domain.ThresholdReject {
				return fmt.Errorf("%w: removal would leave %d trustees for threshold %d",
					domain.ErrInvalidThreshold, remaining, cfg.Threshold)
			}
			s.logTransition(ctx, "recovery threshold clamped", domain.CallRemoveTrustee,
				"account", caller,
				"from", cfg.Threshold,
				"to", remaining,
			)
			cfg.Threshold = remaining
		}
		cfg.TotalTrustees = remaining

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		if err := tx.DeleteTrusteeShare(ctx, caller, trustee); err != nil {
			return fmt.Errorf("deleting trustee share: %w", err)
		}
		if err := tx.SaveRecoveryConfig(ctx, cfg); err != nil {
			return fmt.Errorf("saving recovery config: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:    domain.EventTrusteeRemoved,
			Account: caller,
			Trustee: trustee,
		})
	})
}

// DeactivateRecovery は呼び出し元のリカバリー設定を撤去し、預託金を返却する。
// 進行中のリカバリー要求がある間は実行できない。
func (s *IdentityService) DeactivateRecovery(ctx context.Context, caller domain.AccountID) (err error) {
	ctx, span := s.startSpan(ctx, domain.CallDeactivateRecovery, caller)
	defer func() { endSpan(span, err) }()

	return s.store.Atomic(ctx, func(tx ports.Ledger) error {
		cfg, err := tx.FindRecoveryConfig(ctx, caller)
		if err != nil {
			return fmt.Errorf("finding recovery config: %w", err)
		}
		if cfg == nil {
			return domain.ErrRecoveryNotConfigured
		}
		if err := ensureNoActiveRecovery(ctx, tx, caller); err != nil {
			return err
		}

		height, err := tx.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("getting current height: %w", err)
		}

		shares, err := tx.ListTrusteeShares(ctx, caller)
		if err != nil {
			return fmt.Errorf("listing trustee shares: %w", err)
		}
		for _, share := range shares {
			if err := tx.DeleteTrusteeShare(ctx, caller, share.Trustee); err != nil {
				return fmt.Errorf("deleting trustee share: %w", err)
			}
		}

		deposit, found, err := tx.FindRecoveryDeposit(ctx, caller)
		if err != nil {
			return fmt.Errorf("finding recovery deposit: %w", err)
		}
		if !found {
			deposit = cfg.Deposit
		}
		if _, err := tx.Unreserve(ctx, caller, deposit); err != nil {
			return fmt.Errorf("releasing deposit: %w", err)
		}
		if err := tx.DeleteRecoveryDeposit(ctx, caller); err != nil {
			return fmt.Errorf("deleting recovery deposit: %w", err)
		}
		if err := tx.DeleteRecoveryConfig(ctx, caller); err != nil {
			return fmt.Errorf("deleting recovery config: %w", err)
		}
		return emit(ctx, tx, height, domain.Event{
			Type:    domain.EventRecoveryDeactivated,
			Account: caller,
		})
	})
}

// GetRecoveryConfig は指定アカウントのリカバリー設定を取得する。
func (s *IdentityService) GetRecoveryConfig(ctx context.Context, owner domain.AccountID) (*domain.RecoveryConfig, error) {
	var cfg *domain.RecoveryConfig
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		cfg, err = tx.FindRecoveryConfig(ctx, owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding recovery config: %w", err)
	}
	if cfg == nil {
		return nil, domain.ErrRecoveryNotConfigured
	}
	return cfg, nil
}

// GetTrusteeShare は (owner, trustee) のシェア記録を取得する。シェアは復号して返す。
func (s *IdentityService) GetTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) (*domain.TrusteeShare, error) {
	var share *domain.TrusteeShare
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		share, err = tx.FindTrusteeShare(ctx, owner, trustee)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding trustee share: %w", err)
	}
	if share == nil {
		return nil, domain.ErrTrusteeNotFound
	}
	if err := s.openShare(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// ListTrusteeShares は owner の全トラスティ記録を取得する。
func (s *IdentityService) ListTrusteeShares(ctx context.Context, owner domain.AccountID) ([]*domain.TrusteeShare, error) {
	var shares []*domain.TrusteeShare
	err := s.store.Atomic(ctx, func(tx ports.Ledger) error {
		var err error
		shares, err = tx.ListTrusteeShares(ctx, owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing trustee shares: %w", err)
	}
	for _, share := range shares {
		if err := s.openShare(ctx, share); err != nil {
			return nil, err
		}
	}
	return shares, nil
}

func (s *IdentityService) sealShare(ctx context.Context, payload []byte) ([]byte, error) {
	if s.sealer == nil || len(payload) == 0 {
		return payload, nil
	}
	sealed, err := s.sealer.Encrypt(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("sealing share: %w", err)
	}
	return sealed, nil
}

func (s *IdentityService) openShare(ctx context.Context, share *domain.TrusteeShare) error {
	if s.sealer == nil || len(share.Share) == 0 {
		return nil
	}
	plain, err := s.sealer.Decrypt(ctx, share.Share)
	if err != nil {
		return fmt.Errorf("opening share: %w", err)
	}
	share.Share = plain
	return nil
}

func ensureNoActiveRecovery(ctx context.Context, tx ports.Ledger, account domain.AccountID) error {
	req, err := tx.FindActiveRecovery(ctx, account)
	if err != nil {
		return fmt.Errorf("finding active recovery: %w", err)
	}
	if req != nil {
		return domain.ErrRecoveryAlreadyActive
	}
	return nil
}
