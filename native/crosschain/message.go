package crosschain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"usdacore/crypto"
)

// KindSnapshot carries the sender's absolute liquidity and volume figures.
const KindSnapshot = "snapshot"

// Snapshot is an absolute view of the sender chain. Receivers overwrite
// their copy instead of applying deltas, so replays cannot double count.
type Snapshot struct {
	CDSLiquidity         *big.Int `json:"cdsLiquidity"`
	AvailableLiquidation *big.Int `json:"availableLiquidation"`
	BorrowerVolume       *big.Int `json:"borrowerVolume"`
	USDaSupply           *big.Int `json:"usdaSupply"`
	Timestamp            uint64   `json:"timestamp"`
}

func (s *Snapshot) ensureDefaults() {
	for _, slot := range []**big.Int{&s.CDSLiquidity, &s.AvailableLiquidation, &s.BorrowerVolume, &s.USDaSupply} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
}

// Message is the signed envelope exchanged between deployments.
type Message struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	SrcChain  uint64   `json:"srcChain"`
	DstChain  uint64   `json:"dstChain"`
	Sequence  uint64   `json:"sequence"`
	Snapshot  Snapshot `json:"snapshot"`
	Fee       *big.Int `json:"fee"`
	Signature []byte   `json:"signature"`
}

type signingPayload struct {
	ID                   string
	Kind                 string
	SrcChain             uint64
	DstChain             uint64
	Sequence             uint64
	CDSLiquidity         *big.Int
	AvailableLiquidation *big.Int
	BorrowerVolume       *big.Int
	USDaSupply           *big.Int
	Timestamp            uint64
}

// SigningBytes is the RLP encoding covered by the signature.
func (m *Message) SigningBytes() ([]byte, error) {
	snap := m.Snapshot
	snap.ensureDefaults()
	return rlp.EncodeToBytes(signingPayload{
		ID:                   m.ID,
		Kind:                 m.Kind,
		SrcChain:             m.SrcChain,
		DstChain:             m.DstChain,
		Sequence:             m.Sequence,
		CDSLiquidity:         snap.CDSLiquidity,
		AvailableLiquidation: snap.AvailableLiquidation,
		BorrowerVolume:       snap.BorrowerVolume,
		USDaSupply:           snap.USDaSupply,
		Timestamp:            snap.Timestamp,
	})
}

// Sign attaches a secp256k1 signature from key.
func (m *Message) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("crosschain: signer not configured")
	}
	payload, err := m.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := key.Sign(payload)
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Signer recovers the address that signed the message.
func (m *Message) Signer() ([20]byte, error) {
	payload, err := m.SigningBytes()
	if err != nil {
		return [20]byte{}, err
	}
	return crypto.RecoverSigner(payload, m.Signature)
}

// OutboundRecord is a prepared message awaiting delivery.
type OutboundRecord struct {
	Message   Message
	Delivered bool
}
