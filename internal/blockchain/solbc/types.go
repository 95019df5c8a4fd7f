// internal/blockchain/solbc/types.go
package solbc

// maxBlockComputeUnits – лимит вычислительных единиц на блок,
// используется как аналог gas limit.
const maxBlockComputeUnits uint64 = 48_000_000
