// Package mock provides in-memory implementations of the core storage,
// vector index, object storage and embedding interfaces.
//
// The fakes behave like their production counterparts closely enough for the
// ingestion pipeline to run end to end in unit tests: chunk transactions are
// staged and only become visible on Commit, and every fake can be told to fail
// a specific operation.
//
//	db := mock.NewMemoryDb()
//	db.CommitErr = errors.New("connection reset")
//	index := mock.NewMemoryVectorIndex()
//	embedder := mock.NewMockEmbedder(8)
package mock
