// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression selects how chunk payloads are compressed at rest.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a configured compression name. The empty
// string means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("chunkstore: unknown compression %q", name)
	}
}

// checksumKey domain-separates payload checksums from any other BLAKE3
// use of the same bytes.
var checksumKey = [32]byte{
	'r', 'd', 'a', 't', 'a', '.', 'c', 'h', 'u', 'n', 'k', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd',
}

var errIncompressible = errors.New("payload does not compress")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("chunkstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("chunkstore: zstd decoder initialization failed: " + err.Error())
	}
}

func checksum(payload []byte) []byte {
	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("chunkstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	return hasher.Sum(nil)
}

// sealed is a payload as it sits in a row.
type sealed struct {
	compression Compression
	encrypted   bool
	size        int
	checksum    []byte
	data        []byte
}

// sealer turns plaintext payloads into rows and back.
type sealer struct {
	compression Compression
	identity    *age.X25519Identity
}

func (c sealer) seal(payload []byte) (sealed, error) {
	row := sealed{
		compression: c.compression,
		size:        len(payload),
		checksum:    checksum(payload),
	}

	data, err := compress(payload, c.compression)
	if errors.Is(err, errIncompressible) {
		row.compression = CompressionNone
		data = payload
	} else if err != nil {
		return sealed{}, err
	}

	if c.identity != nil {
		var buffer bytes.Buffer
		writer, err := age.Encrypt(&buffer, c.identity.Recipient())
		if err != nil {
			return sealed{}, fmt.Errorf("encrypting payload: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return sealed{}, fmt.Errorf("encrypting payload: %w", err)
		}
		if err := writer.Close(); err != nil {
			return sealed{}, fmt.Errorf("encrypting payload: %w", err)
		}
		data = buffer.Bytes()
		row.encrypted = true
	}
	row.data = data
	return row, nil
}

func (c sealer) open(row sealed) ([]byte, error) {
	data := row.data
	if row.encrypted {
		if c.identity == nil {
			return nil, errors.New("payload is encrypted and no identity is configured")
		}
		reader, err := age.Decrypt(bytes.NewReader(data), c.identity)
		if err != nil {
			return nil, fmt.Errorf("decrypting payload: %w", err)
		}
		data, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("decrypting payload: %w", err)
		}
	}

	payload, err := decompress(data, row.compression, row.size)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(checksum(payload), row.checksum) != 1 {
		return nil, errors.New("payload checksum mismatch")
	}
	return payload, nil
}

func compress(payload []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(payload)))
		written, err := lz4.CompressBlock(payload, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(payload) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) >= len(payload) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}

func decompress(data []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("payload is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}
