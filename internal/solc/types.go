// Package solc holds the subset of the solc compiler output schema needed to
// lay out contract storage.
package solc

import (
	"fmt"
	"strings"
)

// Storage encodings reported by solc.
const (
	EncodingInplace      = "inplace"
	EncodingMapping      = "mapping"
	EncodingDynamicArray = "dynamic_array"
	EncodingBytes        = "bytes"
)

// StorageLayout represents the solc compilers output storage layout for
// a contract.
type StorageLayout struct {
	Storage []StorageLayoutEntry         `json:"storage"`
	Types   map[string]StorageLayoutType `json:"types"`
}

// GetStorageLayoutEntry returns the StorageLayoutEntry where the label matches
// the provided name.
func (s *StorageLayout) GetStorageLayoutEntry(name string) (StorageLayoutEntry, error) {
	for _, entry := range s.Storage {
		if entry.Label == name {
			return entry, nil
		}
	}
	return StorageLayoutEntry{}, fmt.Errorf("%s not found", name)
}

// GetStorageLayoutType returns the StorageLayoutType where the label matches
// the provided name.
func (s *StorageLayout) GetStorageLayoutType(name string) (StorageLayoutType, error) {
	if ty, ok := s.Types[name]; ok {
		return ty, nil
	}
	return StorageLayoutType{}, fmt.Errorf("%s not found", name)
}

type StorageLayoutEntry struct {
	AstId    uint   `json:"astId"`
	Contract string `json:"contract"`
	Label    string `json:"label"`
	Offset   uint   `json:"offset"`
	Slot     uint   `json:"slot,string"`
	Type     string `json:"type"`
}

type StorageLayoutType struct {
	Encoding      string               `json:"encoding"`
	Label         string               `json:"label"`
	NumberOfBytes uint                 `json:"numberOfBytes,string"`
	Key           string               `json:"key,omitempty"`
	Value         string               `json:"value,omitempty"`
	Base          string               `json:"base,omitempty"`
	Members       []StorageLayoutEntry `json:"members,omitempty"`
}

// ValueKind classifies the Solidity value type behind a type label.
type ValueKind int

const (
	KindUnknown ValueKind = iota
	KindUint
	KindInt
	KindBool
	KindAddress
	KindFixedBytes
	KindString
)

// Kind derives the value kind from the human readable type label, e.g.
// "uint8", "address", "contract AddressManager", "bytes32", "string".
func (t StorageLayoutType) Kind() ValueKind {
	label := t.Label
	switch {
	case label == "bool":
		return KindBool
	case label == "address", label == "address payable",
		strings.HasPrefix(label, "contract "), strings.HasPrefix(label, "interface "):
		return KindAddress
	case strings.HasPrefix(label, "uint"), strings.HasPrefix(label, "enum "):
		return KindUint
	case strings.HasPrefix(label, "int"):
		return KindInt
	case label == "string":
		return KindString
	case strings.HasPrefix(label, "bytes") && label != "bytes":
		return KindFixedBytes
	}
	return KindUnknown
}
