package ledger

// accountStorageOverhead is the per-account metadata size charged on top of
// the account data.
const accountStorageOverhead = 128

type Rent struct {
	LamportsPerByteYear     uint64
	ExemptionThresholdYears uint64
}

var DefaultRent = Rent{
	LamportsPerByteYear:     3480,
	ExemptionThresholdYears: 2,
}

func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (accountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThresholdYears
}

func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
