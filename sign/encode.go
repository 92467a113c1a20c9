package sign

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
)

type encodedSecretKey struct {
	Index  int
	Secret []byte
}

type encodedVerificationKey struct {
	Threshold int
	Public    []byte
	Publics   [][]byte
}

func encode(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, &codec.MsgpackHandle{}).Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte, data interface{}) error {
	return codec.NewDecoder(bytes.NewReader(b), &codec.MsgpackHandle{}).Decode(data)
}

// EncodeSecretKey serializes a party's secret share for its config file.
func EncodeSecretKey(sk *SecretKey) ([]byte, error) {
	secret, err := sk.secret.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return encode(encodedSecretKey{Index: sk.index, Secret: secret})
}

// DecodeSecretKey is the inverse of EncodeSecretKey.
func DecodeSecretKey(b []byte) (*SecretKey, error) {
	var e encodedSecretKey
	if err := decode(b, &e); err != nil {
		return nil, errors.Wrap(err, "decode secret key")
	}
	if e.Index < 1 {
		return nil, errors.Wrapf(ErrInvalidIndex, "index %d", e.Index)
	}
	secret := suite.G2().Scalar()
	if err := secret.UnmarshalBinary(e.Secret); err != nil {
		return nil, errors.Wrap(err, "decode secret scalar")
	}
	return &SecretKey{index: e.Index, secret: secret}, nil
}

// EncodeVerificationKey serializes the public key material shared by all parties.
func EncodeVerificationKey(vk *VerificationKey) ([]byte, error) {
	e := encodedVerificationKey{Threshold: vk.threshold, Publics: make([][]byte, len(vk.publics))}
	var err error
	if e.Public, err = vk.public.MarshalBinary(); err != nil {
		return nil, err
	}
	for i, p := range vk.publics {
		if e.Publics[i], err = p.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	return encode(e)
}

// DecodeVerificationKey is the inverse of EncodeVerificationKey.
func DecodeVerificationKey(b []byte) (*VerificationKey, error) {
	var e encodedVerificationKey
	if err := decode(b, &e); err != nil {
		return nil, errors.Wrap(err, "decode verification key")
	}
	if e.Threshold < 1 || e.Threshold > len(e.Publics) {
		return nil, ErrInvalidThreshold
	}
	public := suite.G2().Point()
	if err := public.UnmarshalBinary(e.Public); err != nil {
		return nil, errors.Wrap(err, "decode group public key")
	}
	publics := make([]kyber.Point, len(e.Publics))
	for i, raw := range e.Publics {
		publics[i] = suite.G2().Point()
		if err := publics[i].UnmarshalBinary(raw); err != nil {
			return nil, errors.Wrapf(err, "decode public key of party %d", i+1)
		}
	}
	return &VerificationKey{threshold: e.Threshold, public: public, publics: publics}, nil
}

// EncodeShare serializes a share or signature point.
func EncodeShare(share Share) ([]byte, error) {
	if share == nil {
		return nil, nil
	}
	return share.MarshalBinary()
}

// DecodeShare is the inverse of EncodeShare. Empty input decodes to a nil share.
func DecodeShare(b []byte) (Share, error) {
	if len(b) == 0 {
		return nil, nil
	}
	share := suite.G1().Point()
	if err := share.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "decode share")
	}
	return share, nil
}
