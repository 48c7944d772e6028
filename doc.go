// Package leakybucket implements a thread-safe leaky-bucket rate limiter.
//
// A RateLimiter guards a single identity. Every admitted request adds one
// unit to a virtual bucket that drains continuously at a fixed rate; a
// request is admitted only while the bucket has spare capacity. Callers that
// need one bucket per user create one RateLimiter per user.
//
// RedisBucket runs the same leak-then-admit step inside a Lua script so that
// several processes can share one bucket. Find optional demos under cmd/.
package leakybucket
