// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-identity.
//
// go-identity is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// ErrCorruptRecord is returned when a stored envelope cannot be decoded.
var ErrCorruptRecord = errors.New("storage: corrupt record")

const (
	recordMagic   = "TIK"
	recordVersion = 1

	// magic, version, access control, generation, accessibility length
	recordHeaderLen = len(recordMagic) + 1 + 4 + 8 + 1
)

// Record is the envelope adapters persist for one item.
//
//	"TIK" | version u8 | access control u32 | generation u64 |
//	len u8 | accessibility | value
type Record struct {
	Value         []byte
	Accessibility types.AccessibilityMode
	AccessControl types.AccessControlMode

	// Generation is the biometric enrollment generation captured at save
	// time for items bound to the current biometry set.
	Generation uint64
}

// MarshalBinary encodes r.
func (r *Record) MarshalBinary() ([]byte, error) {
	acc := string(r.Accessibility)
	if len(acc) > 255 {
		return nil, fmt.Errorf("%w: accessibility mode too long", types.ErrInvalidArgument)
	}
	buf := make([]byte, 0, recordHeaderLen+len(acc)+len(r.Value))
	buf = append(buf, recordMagic...)
	buf = append(buf, recordVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.AccessControl))
	buf = binary.BigEndian.AppendUint64(buf, r.Generation)
	buf = append(buf, byte(len(acc)))
	buf = append(buf, acc...)
	buf = append(buf, r.Value...)
	return buf, nil
}

// UnmarshalBinary decodes data into r. r.Value is a copy.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < recordHeaderLen || string(data[:len(recordMagic)]) != recordMagic {
		return ErrCorruptRecord
	}
	p := len(recordMagic)
	if data[p] != recordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, data[p])
	}
	p++
	r.AccessControl = types.AccessControlMode(binary.BigEndian.Uint32(data[p:]))
	p += 4
	r.Generation = binary.BigEndian.Uint64(data[p:])
	p += 8
	n := int(data[p])
	p++
	if len(data) < p+n {
		return ErrCorruptRecord
	}
	r.Accessibility = types.AccessibilityMode(data[p : p+n])
	p += n
	r.Value = append([]byte(nil), data[p:]...)
	return nil
}

// Wipe zeroes the value.
func (r *Record) Wipe() {
	Wipe(r.Value)
}
