package domain

// OutModel is a content-addressed artifact written by a successful training
// job. It is created exactly once per tuple key and model name, and is
// immutable thereafter.
type OutModel struct {
	// key of the model itself. Equals Hash: models are addressed by content.
	Key string

	// SHA-256 of the model content, in hex.
	Hash string

	// permanent path of the model file.
	StorageAddress string
}

func (m *OutModel) Equal(o *OutModel) bool {
	if (m == nil) || (o == nil) {
		return (m == nil) && (o == nil)
	}
	return m.Key == o.Key &&
		m.Hash == o.Hash &&
		m.StorageAddress == o.StorageAddress
}

// InModel is a read-only reference to a prior OutModel.
type InModel struct {
	Key            string
	StorageAddress string
}

func (m *InModel) Equal(o *InModel) bool {
	if (m == nil) || (o == nil) {
		return (m == nil) && (o == nil)
	}
	return m.Key == o.Key && m.StorageAddress == o.StorageAddress
}
