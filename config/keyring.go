package config

import (
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const (
	keyringService = "odinbridge"

	// EnvKeyringDisabled turns keychain access off for headless hosts.
	EnvKeyringDisabled = "ODIN_KEYRING_DISABLED"
)

// KeyringAvailable reports whether the OS keychain may be used.
func KeyringAvailable() bool {
	return os.Getenv(EnvKeyringDisabled) != "1"
}

// LoadAccessKey reads the access key stored for account from the OS keychain.
func LoadAccessKey(account string) (string, error) {
	key, err := zkr.Get(keyringService, account)
	if err != nil {
		return "", fmt.Errorf("keychain get: %w", err)
	}
	if err := ValidateAccessKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// StoreAccessKey saves a valid access key for account in the OS keychain.
func StoreAccessKey(account, accessKey string) error {
	if err := ValidateAccessKey(accessKey); err != nil {
		return err
	}
	if err := zkr.Set(keyringService, account, accessKey); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

// DeleteAccessKey removes the stored access key for account.
func DeleteAccessKey(account string) error {
	return zkr.Delete(keyringService, account)
}
