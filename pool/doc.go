// File: pool/doc.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// NUMA-aware scratch-buffer pooling for the transport hot path. Buffers are
// recycled through lock-free per-size-class slabs so frame encode/decode
// does not allocate per message.
// All core methods are thread-safe or explicitly document the concurrency contract.
package pool
