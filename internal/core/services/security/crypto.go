package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
)

// Keys holds the two keys S0 derives from the network key at load time
// (spec §4.B), plus the zero-key pair used only for the bootstrap
// NETWORK_KEY_SET frame.
type Keys struct {
	Enc  [16]byte
	Auth [16]byte

	EncZero  [16]byte
	AuthZero [16]byte
}

var (
	encConstant  = [16]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	authConstant = [16]byte{0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55}
	zeroKey      = [16]byte{}
)

// DeriveKeys computes K_enc and K_auth from the 128-bit network key K,
// plus the zero-key pair (spec §4.B).
func DeriveKeys(networkKey [16]byte) (Keys, error) {
	block, err := aes.NewCipher(networkKey[:])
	if err != nil {
		return Keys{}, err
	}
	var k Keys
	block.Encrypt(k.Enc[:], encConstant[:])
	block.Encrypt(k.Auth[:], authConstant[:])

	zeroBlock, err := aes.NewCipher(zeroKey[:])
	if err != nil {
		return Keys{}, err
	}
	zeroBlock.Encrypt(k.EncZero[:], encConstant[:])
	zeroBlock.Encrypt(k.AuthZero[:], authConstant[:])
	return k, nil
}

// ofbCrypt runs AES-128 in OFB mode over data, in place semantics
// preserved by returning a fresh slice; OFB is symmetric, so the same
// function both encrypts and decrypts.
func ofbCrypt(key [16]byte, iv [16]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	stream := cipher.NewOFB(block, iv[:])
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// cbcMAC computes the 16-byte CBC-MAC of data under key, zero IV, with
// the final short block zero-padded to the block size (no PKCS#7
// padding; the byte count is already bound into the MAC input by
// macInput's length byte).
func cbcMAC(key [16]byte, data []byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}
	var iv [16]byte
	mode := cipher.NewCBCEncrypter(block, iv[:])

	padded := make([]byte, padLen(len(data)))
	copy(padded, data)

	out := make([]byte, len(padded))
	mode.CryptBlocks(out, padded)
	var result [16]byte
	copy(result[:], out[len(out)-16:])
	return result, nil
}

func padLen(n int) int {
	if n%aes.BlockSize == 0 {
		return n
	}
	return n + (aes.BlockSize - n%aes.BlockSize)
}

// macInput builds the CBC-MAC input for a segment (spec §6, wire: S0
// encapsulation, "MAC input"):
// security_header_byte || src_node_byte || dst_node_byte || (N+1) || data
// where the engine passes the segment's ciphertext, i.e. the encrypted
// flags||plaintext (see segment in codec.go).
func macInput(securityHeader byte, src, dst byte, flagsAndPayload []byte) []byte {
	buf := make([]byte, 0, 4+len(flagsAndPayload))
	buf = append(buf, securityHeader, src, dst, byte(len(flagsAndPayload)))
	buf = append(buf, flagsAndPayload...)
	return buf
}

// authTag computes the 8-byte auth tag: the low 8 bytes of the 16-byte
// CBC-MAC (spec §4.B step 4: "Compute an 8-byte auth tag").
func authTag(key [16]byte, securityHeader byte, src, dst byte, flagsAndPayload []byte) ([8]byte, error) {
	full, err := cbcMAC(key, macInput(securityHeader, src, dst, flagsAndPayload))
	if err != nil {
		return [8]byte{}, err
	}
	var tag [8]byte
	copy(tag[:], full[:8])
	return tag, nil
}

// verifyTag compares tag against the freshly computed MAC in constant
// time.
func verifyTag(key [16]byte, securityHeader byte, src, dst byte, flagsAndPayload []byte, tag [8]byte) (bool, error) {
	want, err := authTag(key, securityHeader, src, dst, flagsAndPayload)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want[:], tag[:]) == 1, nil
}
