package signer

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/canonical"
	"github.com/stretchr/testify/require"
)

func sampleBag() *canonical.Bag {
	return canonical.NewBag().
		Set("tceId", "7b0f0f53-5b3e-4c52-a2b5-0d8f2c0d9e11").
		Set("shipmentId", "SHIP_1").
		Set("mass", "1500.00").
		Set("tocId", "200").
		Set("hocId", nil).
		Set("prevTceIds", []string{})
}

func TestSignThenVerify(t *testing.T) {
	env, err := NewSigner().Sign(sampleBag())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(env.ActivityPublicKeyPem, "-----BEGIN PUBLIC KEY-----"))
	require.NotContains(t, env.ActivityDataJSON, "hocId")
	require.NoError(t, Verify(env))
}

func TestSignaturesDifferPerCall(t *testing.T) {
	s := NewSigner()
	first, err := s.Sign(sampleBag())
	require.NoError(t, err)
	second, err := s.Sign(sampleBag())
	require.NoError(t, err)

	require.Equal(t, first.ActivityDataJSON, second.ActivityDataJSON)
	require.NotEqual(t, first.ActivityPublicKeyPem, second.ActivityPublicKeyPem)
}

func TestVerifyDetectsTampering(t *testing.T) {
	env, err := NewSigner().Sign(sampleBag())
	require.NoError(t, err)

	tampered := *env
	tampered.ActivityDataJSON = strings.Replace(env.ActivityDataJSON, "1500.00", "1400.00", 1)
	err = Verify(&tampered)
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	sig, err := hex.DecodeString(env.ActivitySignature)
	require.NoError(t, err)
	sig[0] ^= 0xFF
	flipped := *env
	flipped.ActivitySignature = hex.EncodeToString(sig)
	require.Error(t, Verify(&flipped))
}

func TestVerifyRejectsMalformedEnvelopes(t *testing.T) {
	env, err := NewSigner().Sign(sampleBag())
	require.NoError(t, err)

	badKey := *env
	badKey.ActivityPublicKeyPem = "not a key"
	require.Error(t, Verify(&badKey))

	badSig := *env
	badSig.ActivitySignature = "zz"
	require.Error(t, Verify(&badSig))

	require.Error(t, Verify(nil))
}

func TestSignRejectsUnserializableBag(t *testing.T) {
	bag := canonical.NewBag().Set("ch", make(chan int))
	_, err := NewSigner().Sign(bag)
	require.Error(t, err)
	require.Equal(t, apperr.KindContractViolation, apperr.KindOf(err))
}
