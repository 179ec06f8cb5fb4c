// Package retry provides bounded retry and polling for cloud operations.
//
// [WithExponentialBackoff] retries an operation until it succeeds, returns
// an error marked with [Fatal], or runs out of attempts. [WithFixedDelay]
// turns it into a fixed-interval retry, which is what teardown uses for
// resources held by a provider-side reservation window. [Poll] waits for a
// condition with an explicit upper bound so a stuck dependency cannot hang
// a worker.
package retry
