package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/babeldcore/babeld/internal/config"
	"github.com/babeldcore/babeld/internal/wire"
)

// buildAuth converts the configured authentication scheme into the
// wire package's AuthConfig, hex-decoding the shared key.
func buildAuth(cfg config.AuthConfig) (wire.AuthConfig, error) {
	var typ wire.AuthType
	switch cfg.Type {
	case "", "none":
		return wire.AuthConfig{Type: wire.AuthNone}, nil
	case "hmac-sha256":
		typ = wire.AuthHMACSHA256
	case "hmac-blake2s128":
		typ = wire.AuthHMACBLAKE2s128
	default:
		return wire.AuthConfig{}, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	key, err := hex.DecodeString(cfg.Key)
	if err != nil {
		return wire.AuthConfig{}, fmt.Errorf("decode auth.key: %w", err)
	}

	var keyID byte
	if cfg.KeyID != "" {
		v, err := strconv.ParseUint(cfg.KeyID, 10, 8)
		if err != nil {
			return wire.AuthConfig{}, fmt.Errorf("parse auth.key_id: %w", err)
		}
		keyID = byte(v)
	}

	return wire.AuthConfig{Type: typ, KeyID: keyID, Key: key}, nil
}
