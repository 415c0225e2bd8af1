package predictchain

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type LayoutVersion uint8

const (
	LayoutUnknown LayoutVersion = iota
	LayoutV1
)

// MarketSizeV1 is the size of a LayoutV1 entry:
// bump_seed u8 | resolve_authority | yes_mint | no_mint | volume u64.
const MarketSizeV1 = 1 + 32 + 32 + 32 + 8

// Market is the persisted state of one binary-outcome market.
type Market struct {
	BumpSeed         uint8
	ResolveAuthority solana.PublicKey
	YesMint          solana.PublicKey
	NoMint           solana.PublicKey
	Volume           uint64
}

// DetectLayout identifies the entry layout from the account data length;
// the layouts carry no tag on the wire.
func DetectLayout(data []byte) LayoutVersion {
	switch len(data) {
	case MarketSizeV1:
		return LayoutV1
	default:
		return LayoutUnknown
	}
}

func UnpackMarket(data []byte) (*Market, error) {
	if layout := DetectLayout(data); layout != LayoutV1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAccountData, len(data))
	}
	var market Market
	if err := bin.NewBorshDecoder(data).Decode(&market); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &market, nil
}

// Pack writes m into dst, which must be a LayoutV1 account buffer.
func (m *Market) Pack(dst []byte) error {
	if DetectLayout(dst) != LayoutV1 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidAccountData, len(dst))
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (m *Market) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, MarketSizeV1))
	if err := bin.NewBorshEncoder(buf).Encode(m); err != nil {
		return nil, fmt.Errorf("encode market: %w", err)
	}
	if buf.Len() != MarketSizeV1 {
		return nil, fmt.Errorf("%w: encoded %d bytes", ErrInvalidAccountData, buf.Len())
	}
	return buf.Bytes(), nil
}

func (m *Market) IsInitialized() bool {
	return !m.YesMint.IsZero() && !m.NoMint.IsZero()
}

// MintFor returns the outcome mint recorded for a side.
func (m *Market) MintFor(side uint8) (solana.PublicKey, error) {
	switch side {
	case SideYes:
		return m.YesMint, nil
	case SideNo:
		return m.NoMint, nil
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: %d", ErrInvalidSideIndex, side)
	}
}
