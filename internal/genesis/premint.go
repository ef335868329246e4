package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// Premint is the balance in wei of each preminted L2 account.
type Premint map[common.Address]*big.Int

// LoadPremint reads a premint table mapping address to wei. Files ending in
// .toml are TOML, anything else is JSON. Amounts are decimal or 0x-hex
// strings, or integers.
func LoadPremint(path string) (Premint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read premint table: %w", err)
	}

	raw := make(map[string]any)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("decode premint table: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode premint table: %w", err)
		}
	}
	return parsePremint(raw)
}

func parsePremint(raw map[string]any) (Premint, error) {
	out := make(Premint, len(raw))
	for key, v := range raw {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("premint: invalid address %q", key)
		}
		var s string
		switch n := v.(type) {
		case string:
			s = n
		case json.Number:
			s = n.String()
		case int64:
			s = fmt.Sprint(n)
		default:
			return nil, fmt.Errorf("premint %s: unsupported amount %v", key, v)
		}
		amount, ok := math.ParseBig256(s)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("premint %s: invalid amount %q", key, s)
		}
		addr := common.HexToAddress(key)
		if _, dup := out[addr]; dup {
			return nil, fmt.Errorf("premint: duplicate address %s", addr)
		}
		out[addr] = amount
	}
	return out, nil
}
