package classify

// #region result
// Result is the intent-classification verdict for one query.
// Invariant: when RequiresRAG is false, DirectResponse is non-empty.
type Result struct {
	RequiresRAG    bool
	Confidence     float32
	DirectResponse string
}

// #endregion result
