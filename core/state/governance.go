package state

import "usdacore/native/multisig"

func (m *Manager) MultisigConfig() (*multisig.Config, error) {
	cfg := new(multisig.Config)
	ok, err := m.KVGet(multisigConfigKey, cfg)
	if err != nil || !ok {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) PutMultisigConfig(cfg *multisig.Config) error {
	return m.KVPut(multisigConfigKey, cfg)
}

func (m *Manager) MultisigApprovals(key string) (uint64, error) {
	var bitmap uint64
	if _, err := m.KVGet(multisigApprovalKey(key), &bitmap); err != nil {
		return 0, err
	}
	return bitmap, nil
}

func (m *Manager) PutMultisigApprovals(key string, bitmap uint64) error {
	if bitmap == 0 {
		return m.KVDelete(multisigApprovalKey(key))
	}
	return m.KVPut(multisigApprovalKey(key), bitmap)
}

func (m *Manager) MultisigPaused(action string) (bool, error) {
	var paused bool
	if _, err := m.KVGet(multisigPausedKey(action), &paused); err != nil {
		return false, err
	}
	return paused, nil
}

func (m *Manager) PutMultisigPaused(action string, paused bool) error {
	if !paused {
		return m.KVDelete(multisigPausedKey(action))
	}
	return m.KVPut(multisigPausedKey(action), paused)
}
