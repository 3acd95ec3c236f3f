package domain

// Call はホストに公開するコマンド名を表す。
type Call string

const (
	CallCreateIdentity     Call = "create_identity"
	CallConfigureRecovery  Call = "configure_recovery"
	CallAddTrustee         Call = "add_trustee"
	CallRemoveTrustee      Call = "remove_trustee"
	CallDeactivateRecovery Call = "deactivate_recovery"
	CallInitiateRecovery   Call = "initiate_recovery"
	CallSubmitTrusteeShare Call = "submit_trustee_share"
	CallExecuteRecovery    Call = "execute_recovery"
	CallCancelRecovery     Call = "cancel_recovery"
)

// CallVersion はコマンド体系のバージョン。
const CallVersion = 1

var callWeights = map[Call]uint64{
	CallCreateIdentity:     10_000,
	CallConfigureRecovery:  50_000,
	CallAddTrustee:         30_000,
	CallRemoveTrustee:      30_000,
	CallDeactivateRecovery: 30_000,
	CallInitiateRecovery:   40_000,
	CallSubmitTrusteeShare: 30_000,
	CallExecuteRecovery:    60_000,
	CallCancelRecovery:     20_000,
}

// Weight はホストのリソース計上に渡すコマンドの重みを返す。
func (c Call) Weight() uint64 {
	return callWeights[c]
}
