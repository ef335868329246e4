package genesis

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/solc"
)

// ErrUnsupportedType is returned for storage types the packer cannot encode.
var ErrUnsupportedType = errors.New("unsupported storage type")

// StorageValues assigns Go values to state variables by label. Mappings take
// a Go map keyed by the Solidity key type.
type StorageValues map[string]any

// ComputeStorageSlots lays out values according to the compiler storage
// layout. Variables sharing a slot are packed by their byte offset. Words
// that end up zero are omitted.
func ComputeStorageSlots(layout *solc.StorageLayout, values StorageValues) (map[common.Hash]common.Hash, error) {
	if layout == nil {
		return nil, errors.New("no storage layout")
	}
	p := &packer{layout: layout, words: make(map[common.Hash]*uint256.Int)}

	labels := make([]string, 0, len(values))
	for label := range values {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	for _, label := range labels {
		entry, err := layout.GetStorageLayoutEntry(label)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", label, err)
		}
		slot := common.BigToHash(new(big.Int).SetUint64(uint64(entry.Slot)))
		if err := p.set(entry.Type, slot, entry.Offset, values[label]); err != nil {
			return nil, fmt.Errorf("variable %s: %w", label, err)
		}
	}

	out := make(map[common.Hash]common.Hash, len(p.words))
	for slot, word := range p.words {
		if !word.IsZero() {
			out[slot] = word.Bytes32()
		}
	}
	return out, nil
}

type packer struct {
	layout *solc.StorageLayout
	words  map[common.Hash]*uint256.Int
}

func (p *packer) set(typeID string, slot common.Hash, offset uint, v any) error {
	ty, err := p.layout.GetStorageLayoutType(typeID)
	if err != nil {
		return err
	}
	switch ty.Encoding {
	case solc.EncodingInplace:
		return p.setInplace(ty, slot, offset, v)
	case solc.EncodingMapping:
		return p.setMapping(ty, slot, v)
	default:
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, ty.Label, ty.Encoding)
	}
}

func (p *packer) setInplace(ty solc.StorageLayoutType, slot common.Hash, offset uint, v any) error {
	size := ty.NumberOfBytes
	if size == 0 || size > 32 || offset+size > 32 {
		return fmt.Errorf("%s does not fit a slot at offset %d", ty.Label, offset)
	}
	val, err := encodeValue(ty, v)
	if err != nil {
		return err
	}

	shift := offset * 8
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), size*8), 1)
	if size == 32 {
		mask = new(uint256.Int).SetAllOne()
	}
	mask.Lsh(mask, shift)

	word, ok := p.words[slot]
	if !ok {
		word = new(uint256.Int)
		p.words[slot] = word
	}
	word.And(word, new(uint256.Int).Not(mask))
	word.Or(word, new(uint256.Int).Lsh(val, shift))
	return nil
}

// setMapping writes each entry at keccak256(key . slot). Mapped values start
// a fresh slot, so their offset is always zero.
func (p *packer) setMapping(ty solc.StorageLayoutType, slot common.Hash, v any) error {
	keyType, err := p.layout.GetStorageLayoutType(ty.Key)
	if err != nil {
		return err
	}
	m := reflect.ValueOf(v)
	if m.Kind() != reflect.Map {
		return fmt.Errorf("%s needs a map, got %T", ty.Label, v)
	}
	for _, k := range m.MapKeys() {
		key, err := encodeKey(keyType, k.Interface())
		if err != nil {
			return fmt.Errorf("key %v: %w", k.Interface(), err)
		}
		entrySlot := crypto.Keccak256Hash(key, slot.Bytes())
		if err := p.set(ty.Value, entrySlot, 0, m.MapIndex(k).Interface()); err != nil {
			return fmt.Errorf("key %v: %w", k.Interface(), err)
		}
	}
	return nil
}

// encodeKey returns the bytes hashed with the slot for a mapping key: value
// types are padded to a word, strings are used raw.
func encodeKey(ty solc.StorageLayoutType, k any) ([]byte, error) {
	switch ty.Kind() {
	case solc.KindString:
		s, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("string key needs a string, got %T", k)
		}
		return []byte(s), nil
	case solc.KindFixedBytes:
		b, err := fixedBytes(k)
		if err != nil {
			return nil, err
		}
		return common.RightPadBytes(b, 32), nil
	}
	val, err := encodeValue(ty, k)
	if err != nil {
		return nil, err
	}
	word := val.Bytes32()
	return word[:], nil
}

// encodeValue converts v into the right-aligned word of a value type.
func encodeValue(ty solc.StorageLayoutType, v any) (*uint256.Int, error) {
	bits := ty.NumberOfBytes * 8
	switch ty.Kind() {
	case solc.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bool needs a bool, got %T", v)
		}
		if b {
			return uint256.NewInt(1), nil
		}
		return new(uint256.Int), nil

	case solc.KindAddress:
		addr, ok := v.(common.Address)
		if !ok {
			return nil, fmt.Errorf("%s needs a common.Address, got %T", ty.Label, v)
		}
		return new(uint256.Int).SetBytes(addr.Bytes()), nil

	case solc.KindUint:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 || uint(n.BitLen()) > bits {
			return nil, fmt.Errorf("%s out of range: %s", ty.Label, n)
		}
		out, _ := uint256.FromBig(n)
		return out, nil

	case solc.KindInt:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s out of range: %s", ty.Label, n)
		}
		if n.Sign() < 0 {
			// two's complement within the type width
			n = new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), bits))
		}
		out, _ := uint256.FromBig(n)
		return out, nil

	case solc.KindFixedBytes:
		b, err := fixedBytes(v)
		if err != nil {
			return nil, err
		}
		if uint(len(b)) != ty.NumberOfBytes {
			return nil, fmt.Errorf("%s needs %d bytes, got %d", ty.Label, ty.NumberOfBytes, len(b))
		}
		return new(uint256.Int).SetBytes(b), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ty.Label)
}

func fixedBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case common.Hash:
		return b.Bytes(), nil
	case []byte:
		return b, nil
	case string:
		return common.FromHex(b), nil
	}
	return nil, fmt.Errorf("fixed bytes need common.Hash, []byte or hex string, got %T", v)
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case *uint256.Int:
		return n.ToBig(), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	}
	return nil, fmt.Errorf("integer needs an int, uint or *big.Int, got %T", v)
}
