package cryptoutil

import "testing"

func TestGenerateKeyPair_RoundTripsThroughMultibase(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	encodedSig, err := EncodeEd25519PublicKey(kp.SigningPublic)
	if err != nil {
		t.Fatal(err)
	}
	decodedSig, err := DecodeEd25519PublicKey(encodedSig)
	if err != nil {
		t.Fatal(err)
	}
	if !decodedSig.Equal(kp.SigningPublic) {
		t.Error("ed25519 public key did not round-trip")
	}

	encodedAgreement, err := EncodeX25519PublicKey(kp.AgreementPublic)
	if err != nil {
		t.Fatal(err)
	}
	decodedAgreement, err := DecodeX25519PublicKey(encodedAgreement)
	if err != nil {
		t.Fatal(err)
	}
	if decodedAgreement.Bytes() == nil || string(decodedAgreement.Bytes()) != string(kp.AgreementPublic.Bytes()) {
		t.Error("x25519 public key did not round-trip")
	}
}

func TestDecodeEd25519PublicKey_RejectsWrongCodec(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeX25519PublicKey(kp.AgreementPublic)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeEd25519PublicKey(encoded); err == nil {
		t.Error("expected error decoding x25519-tagged key as ed25519")
	}
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte(`{"a":1,"b":2}`)
	sig := Sign(kp.SigningPrivate, msg)
	if !Verify(kp.SigningPublic, msg, sig) {
		t.Error("expected signature to verify")
	}
	if Verify(kp.SigningPublic, []byte(`{"a":1,"b":3}`), sig) {
		t.Error("expected signature over different payload to fail")
	}
}
