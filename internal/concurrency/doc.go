// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives backing the transport's task model: a resizable
// NUMA-pinnable executor, a bounded MPMC queue, and per-platform CPU/NUMA
// pinning and topology queries.
package concurrency
