package domain

// Record is the persisted shape of a session.
// Data is opaque to the store and never inspected.
type Record struct {
	ID     string
	Expiry int64 // Unix seconds; the record is logically expired once now > Expiry.
	Data   []byte
}

// ExpiredAt reports whether the record is logically expired at the given Unix time.
func (r *Record) ExpiredAt(now int64) bool {
	return now > r.Expiry
}

// Strategy names, as used in configuration and metric labels.
const (
	StrategyTransactional = "transactional"
	StrategyAdvisory      = "advisory"
)
