package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// LoadOrCreateSigner opens the v3 keystore at path, generating and sealing a
// fresh key when the file does not exist yet.
func LoadOrCreateSigner(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	switch {
	case err == nil:
		decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
		if err != nil {
			return nil, fmt.Errorf("crypto: decrypt keystore: %w", err)
		}
		return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
	case errors.Is(err, fs.ErrNotExist):
		key, err := GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		if err := sealKeystore(path, key, passphrase); err != nil {
			return nil, err
		}
		return key, nil
	default:
		return nil, err
	}
}

func sealKeystore(path string, key *PrivateKey, passphrase string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(dir, "signer-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	ks := keystore.NewKeyStore(staging, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return err
	}
	if err := os.Rename(account.URL.Path, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
