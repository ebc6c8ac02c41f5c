package ed25519

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/pollchain/core/address"
)

func TestPublicKey_New(t *testing.T) {
	signer := NewSigner()

	buf, err := signer.GetPublicKey().MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, address.Size)

	pk, err := NewPublicKey(buf)
	require.NoError(t, err)
	require.True(t, pk.Equal(signer.GetPublicKey()))
	require.False(t, pk.Equal("not a key"))

	_, err = NewPublicKey([]byte{})
	require.EqualError(t, err, "couldn't unmarshal point: invalid Ed25519 curve point")
}

func TestPublicKey_Address(t *testing.T) {
	signer := NewSigner()

	buf, err := signer.GetPublicKey().MarshalBinary()
	require.NoError(t, err)

	addr := signer.Address()
	require.Equal(t, buf, addr.Bytes())
	require.True(t, address.IsOnCurve(addr[:]))

	pk := signer.GetPublicKey().(PublicKey)
	require.Equal(t, addr, pk.Address())
	require.Equal(t, "ed25519:"+addr.String(), pk.String())
}

func TestPublicKey_Verify(t *testing.T) {
	signer := NewSigner()

	sig, err := signer.Sign([]byte("ping"))
	require.NoError(t, err)

	data, err := sig.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, SignatureSize)

	err = signer.GetPublicKey().Verify([]byte("ping"), sig)
	require.NoError(t, err)

	err = signer.GetPublicKey().Verify([]byte("pong"), sig)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schnorr verify failed: ")

	err = NewSigner().GetPublicKey().Verify([]byte("ping"), sig)
	require.Error(t, err)

	err = signer.GetPublicKey().Verify([]byte("ping"), nil)
	require.EqualError(t, err, "invalid signature type '<nil>'")
}

func TestSignature_Equal(t *testing.T) {
	sig := NewSignature([]byte{1, 2, 3})

	require.True(t, sig.Equal(NewSignature([]byte{1, 2, 3})))
	require.False(t, sig.Equal(NewSignature([]byte{1})))
	require.False(t, sig.Equal(nil))
}

func TestSigner_MarshalBinary(t *testing.T) {
	signer := NewSigner()

	data, err := signer.MarshalBinary()
	require.NoError(t, err)

	restored, err := NewSignerFromBytes(data)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), restored.Address())

	sig, err := restored.Sign([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, signer.GetPublicKey().Verify([]byte("ping"), sig))

	_, err = NewSignerFromBytes([]byte{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal scalar: ")
}
